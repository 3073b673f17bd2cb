// Package chat holds the ChatSession controller. All transcript and state
// mutation goes through four events: Submit, Resolve, Tick and Stop. They must
// be called from a single goroutine; only Execute may run elsewhere.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"GPTAssistant/internal/audit"
	"GPTAssistant/internal/backend"
	"GPTAssistant/internal/reveal"
	"GPTAssistant/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Completer turns a conversation into a single reply
type Completer interface {
	Validate() error
	Complete(ctx context.Context, turns []session.Turn) (backend.Completion, error)
	Model() string
	SetModel(model string)
}

// Request is an accepted submission waiting to be sent upstream
type Request struct {
	TurnID string
	Turns  []session.Turn

	span trace.Span
}

// Result is the outcome of executing a Request
type Result struct {
	TurnID     string
	Completion backend.Completion
	Err        error
}

// turn tracks the submission currently owning the pending flag
type turn struct {
	id       string
	started  time.Time
	span     trace.Span
	status   int
	response int
}

// Session is the ChatSession controller
type Session struct {
	completer Completer
	greeting  string
	now       func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
	recorder  audit.Recorder

	turns metric.Int64Counter
	ticks metric.Int64Counter

	sess       *session.Session
	pending    bool
	current    *turn
	typewriter *reveal.Typewriter
	generation int
}

// Option configures a Session
type Option func(*Session)

// WithClock overrides the time source used for message timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithTracer sets the tracer used for turn spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) { s.tracer = tracer }
}

// WithMeter sets the meter used for turn and tick counters
func WithMeter(meter metric.Meter) Option {
	return func(s *Session) {
		s.turns, _ = meter.Int64Counter("chat.turns", metric.WithDescription("Finished chat turns by outcome"))
		s.ticks, _ = meter.Int64Counter("chat.reveal.ticks", metric.WithDescription("Characters revealed by the typewriter"))
	}
}

// WithRecorder sets where finished turns are audited
func WithRecorder(r audit.Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithGreeting seeds every new session with an assistant message.
// An empty greeting disables it.
func WithGreeting(greeting string) Option {
	return func(s *Session) { s.greeting = greeting }
}

// New creates a controller with a fresh session
func New(completer Completer, opts ...Option) *Session {
	s := &Session{
		completer: completer,
		now:       time.Now,
		logger:    slog.Default(),
		tracer:    tracenoop.NewTracerProvider().Tracer("chat"),
	}
	WithMeter(metricnoop.NewMeterProvider().Meter("chat"))(s)

	for _, opt := range opts {
		opt(s)
	}

	s.sess = s.newSession()
	return s
}

func (s *Session) newSession() *session.Session {
	sess := session.New(s.completer.Model(), s.greeting, s.now())
	s.logger.Info("created new session", "session_id", sess.ID, "model", sess.Model)
	return sess
}

// Reset starts a new session. It is refused while a turn is pending.
func (s *Session) Reset() bool {
	if s.pending {
		return false
	}
	s.sess = s.newSession()
	return true
}

// SessionID returns the current session ID
func (s *Session) SessionID() string {
	return s.sess.ID
}

// Model returns the model used for the next request
func (s *Session) Model() string {
	return s.completer.Model()
}

// SetModel switches the model for subsequent requests
func (s *Session) SetModel(model string) {
	s.completer.SetModel(model)
	s.sess.Model = model
	s.logger.Info("model switched", "session_id", s.sess.ID, "model", model)
}

// Messages returns a copy of the transcript
func (s *Session) Messages() []session.Message {
	return s.sess.Transcript.Messages()
}

// Pending reports whether a turn is in progress
func (s *Session) Pending() bool {
	return s.pending
}

// Revealing reports whether a reveal is active
func (s *Session) Revealing() bool {
	return s.typewriter != nil
}

// Generation identifies the current reveal. It changes every time a reveal
// starts, so timers can tell whether they still belong to the active one.
func (s *Session) Generation() int {
	return s.generation
}

// Submit accepts user text. Blank text or a pending turn is a silent no-op
// (nil, nil). A configuration problem is returned before anything changes.
// On accept the user message is appended and the returned Request carries the
// whole transcript.
func (s *Session) Submit(text string) (*Request, error) {
	if strings.TrimSpace(text) == "" || s.pending {
		return nil, nil
	}
	if err := s.completer.Validate(); err != nil {
		s.logger.Warn("submission rejected", "session_id", s.sess.ID, "error", err)
		return nil, err
	}

	now := s.now()
	s.sess.Transcript.Append(session.Message{
		Role:      session.RoleUser,
		Content:   text,
		Timestamp: now,
	})
	s.pending = true

	id := session.NewID()
	_, span := s.tracer.Start(context.Background(), "chat_turn",
		trace.WithAttributes(
			attribute.String("chat.session_id", s.sess.ID),
			attribute.String("chat.turn_id", id),
		),
	)
	s.current = &turn{id: id, started: now, span: span}

	s.logger.Info("message submitted",
		"session_id", s.sess.ID,
		"turn_id", id,
		"messages", s.sess.Transcript.Len(),
	)

	return &Request{
		TurnID: id,
		Turns:  s.sess.Transcript.Projection(),
		span:   span,
	}, nil
}

// Execute performs exactly one completion call for req. It touches no session
// state and is safe to run off the event goroutine.
func (s *Session) Execute(ctx context.Context, req *Request) Result {
	if req.span != nil {
		ctx = trace.ContextWithSpan(ctx, req.span)
	}
	comp, err := s.completer.Complete(ctx, req.Turns)
	return Result{TurnID: req.TurnID, Completion: comp, Err: err}
}

// Resolve applies the result of the pending turn. Errors become a visible
// "Error: ..." assistant message. On success an empty assistant message is
// appended and a reveal starts; the return value reports whether ticks must
// be scheduled. Results for a turn that is no longer pending are dropped.
func (s *Session) Resolve(res Result) bool {
	if s.current == nil || s.current.id != res.TurnID {
		s.logger.Info("dropping stale result", "session_id", s.sess.ID, "turn_id", res.TurnID)
		return false
	}

	if res.Err != nil {
		s.sess.Transcript.Append(session.Message{
			Role:      session.RoleAssistant,
			Content:   "Error: " + res.Err.Error(),
			Timestamp: s.now(),
		})
		var upErr *backend.UpstreamError
		if errors.As(res.Err, &upErr) {
			s.current.status = upErr.StatusCode
		}
		s.finish(audit.OutcomeFailed, res.Err)
		return false
	}

	s.current.status = res.Completion.StatusCode
	s.sess.Transcript.Append(session.Message{
		Role:      session.RoleAssistant,
		Content:   "",
		Timestamp: s.now(),
	})

	tw := reveal.NewTypewriter(res.Completion.Text)
	s.current.response = tw.Len()
	if tw.Done() {
		s.finish(audit.OutcomeCompleted, nil)
		return false
	}

	s.typewriter = tw
	s.generation++
	return true
}

// Tick reveals one more character of the active reply and reports whether
// further ticks are needed. Without an active reveal it does nothing.
func (s *Session) Tick() bool {
	if s.typewriter == nil {
		return false
	}

	r, ok := s.typewriter.Next()
	if ok {
		s.sess.Transcript.AppendToLast(string(r))
		s.ticks.Add(context.Background(), 1)
	}

	if s.typewriter.Done() {
		s.finish(audit.OutcomeCompleted, nil)
		return false
	}
	return true
}

// Stop abandons the active reveal, leaving the reply truncated, and clears
// pending. A request still in flight is not aborted; its result will be
// dropped by Resolve.
func (s *Session) Stop() {
	if !s.pending {
		return
	}
	s.finish(audit.OutcomeStopped, nil)
}

// finish releases the reveal, clears pending and reports the turn.
func (s *Session) finish(outcome audit.Outcome, err error) {
	t := s.current
	revealed := 0
	if s.typewriter != nil {
		revealed = s.typewriter.Revealed()
	} else if outcome == audit.OutcomeCompleted {
		revealed = t.response
	}

	s.typewriter = nil
	s.pending = false
	s.current = nil

	if t == nil {
		return
	}

	duration := s.now().Sub(t.started)
	entry := audit.Entry{
		SessionID:     s.sess.ID,
		TurnID:        t.id,
		Model:         s.completer.Model(),
		Outcome:       outcome,
		StatusCode:    t.status,
		ResponseChars: t.response,
		RevealedChars: revealed,
		Duration:      duration,
		Timestamp:     s.now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	ctx := context.Background()
	s.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))

	t.span.SetAttributes(
		attribute.String("chat.outcome", string(outcome)),
		attribute.Int("chat.revealed_chars", revealed),
	)
	if err != nil {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
	}
	t.span.End()

	if err != nil {
		s.logger.Error("turn failed", "session_id", s.sess.ID, "turn_id", t.id, "error", err)
	} else {
		s.logger.Info("turn finished",
			"session_id", s.sess.ID,
			"turn_id", t.id,
			"outcome", string(outcome),
			"revealed", revealed,
			"response_chars", t.response,
		)
	}

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, entry); err != nil {
			s.logger.Warn("failed to record turn", "turn_id", t.id, "error", err)
		}
	}
}
