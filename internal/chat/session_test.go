package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"GPTAssistant/internal/audit"
	"GPTAssistant/internal/backend"
	"GPTAssistant/internal/config"
	"GPTAssistant/internal/session"
)

type fakeCompleter struct {
	model    string
	reply    string
	err      error
	validErr error
	calls    [][]session.Turn
}

func (f *fakeCompleter) Validate() error { return f.validErr }

func (f *fakeCompleter) Complete(ctx context.Context, turns []session.Turn) (backend.Completion, error) {
	f.calls = append(f.calls, turns)
	if f.err != nil {
		return backend.Completion{}, f.err
	}
	return backend.Completion{Text: f.reply, StatusCode: 200}, nil
}

func (f *fakeCompleter) Model() string         { return f.model }
func (f *fakeCompleter) SetModel(model string) { f.model = model }

type memoryRecorder struct {
	entries []audit.Entry
}

func (m *memoryRecorder) Record(ctx context.Context, e audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

var testNow = time.Date(2025, 10, 27, 12, 0, 0, 0, time.UTC)

func newTestSession(c Completer, opts ...Option) *Session {
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(c, append(base, opts...)...)
}

// submitAndResolve runs a full turn up to the start of the reveal
func submitAndResolve(t *testing.T, s *Session, text string) bool {
	t.Helper()
	req, err := s.Submit(text)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if req == nil {
		t.Fatal("Submit was not accepted")
	}
	return s.Resolve(s.Execute(context.Background(), req))
}

func TestSubmitAppendsUserMessageBeforeRequest(t *testing.T) {
	c := &fakeCompleter{model: "m", reply: "hi"}
	s := newTestSession(c)

	req, err := s.Submit("hello")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if req == nil {
		t.Fatal("expected accepted request")
	}
	if len(c.calls) != 0 {
		t.Fatalf("no request should be sent by Submit, got %d", len(c.calls))
	}

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != session.RoleUser || msgs[0].Content != "hello" || !msgs[0].Timestamp.Equal(testNow) {
		t.Fatalf("unexpected user message: %+v", msgs[0])
	}
	if !s.Pending() {
		t.Fatal("expected pending after Submit")
	}
	if len(req.Turns) != 1 || req.Turns[0] != (session.Turn{Role: "user", Content: "hello"}) {
		t.Fatalf("unexpected request turns: %+v", req.Turns)
	}
}

func TestSubmitIgnoresBlankAndPending(t *testing.T) {
	c := &fakeCompleter{model: "m", reply: "hi"}
	s := newTestSession(c)

	for _, text := range []string{"", "   ", "\n\t"} {
		req, err := s.Submit(text)
		if req != nil || err != nil {
			t.Fatalf("blank input %q should be a no-op, got %v %v", text, req, err)
		}
	}
	if len(s.Messages()) != 0 || s.Pending() {
		t.Fatal("blank input changed the session")
	}

	if _, err := s.Submit("first"); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	req, err := s.Submit("second")
	if req != nil || err != nil {
		t.Fatalf("Submit while pending should be a no-op, got %v %v", req, err)
	}
	if len(s.Messages()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(s.Messages()))
	}
	if len(c.calls) != 0 {
		t.Fatalf("expected no requests, got %d", len(c.calls))
	}
}

func TestSubmitRejectsMissingCredential(t *testing.T) {
	c := &fakeCompleter{model: "m", validErr: &config.ConfigurationError{Field: config.EnvAPIKey, Reason: "is not set"}}
	s := newTestSession(c)

	req, err := s.Submit("hello")
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if req != nil {
		t.Fatal("expected no request")
	}
	if len(s.Messages()) != 0 || s.Pending() {
		t.Fatal("rejected submission changed the session")
	}
	if len(c.calls) != 0 {
		t.Fatalf("expected no requests, got %d", len(c.calls))
	}
}

func TestRequestCarriesFullTranscript(t *testing.T) {
	c := &fakeCompleter{model: "m", reply: "ok"}
	s := newTestSession(c, WithGreeting("Hi! Ask me anything..."))

	if submitAndResolve(t, s, "one") {
		for s.Tick() {
		}
	}
	if _, err := s.Submit("two"); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	req, _ := s.Submit("ignored")
	if req != nil {
		t.Fatal("second submit while pending must be ignored")
	}

	want := []session.Turn{
		{Role: "assistant", Content: "Hi! Ask me anything..."},
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "two"},
	}
	got := s.sess.Transcript.Projection()
	if len(got) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestRevealTicksOneRuneEach(t *testing.T) {
	const reply = "Héllo, wörld!"
	c := &fakeCompleter{model: "m", reply: reply}
	s := newTestSession(c)

	if !submitAndResolve(t, s, "hi") {
		t.Fatal("expected reveal to start")
	}

	msgs := s.Messages()
	if last := msgs[len(msgs)-1]; last.Role != session.RoleAssistant || last.Content != "" {
		t.Fatalf("expected empty assistant placeholder, got %+v", last)
	}

	runes := []rune(reply)
	ticks := 0
	for {
		more := s.Tick()
		ticks++
		msgs := s.Messages()
		if got := msgs[len(msgs)-1].Content; got != string(runes[:ticks]) {
			t.Fatalf("after %d ticks expected %q, got %q", ticks, string(runes[:ticks]), got)
		}
		if !more {
			break
		}
		if ticks > len(runes) {
			t.Fatal("reveal did not terminate")
		}
	}

	if ticks != len(runes) {
		t.Fatalf("expected %d ticks, got %d", len(runes), ticks)
	}
	if s.Pending() || s.Revealing() {
		t.Fatal("expected pending and reveal cleared after completion")
	}

	msgs = s.Messages()
	if msgs[len(msgs)-1].Content != reply {
		t.Fatalf("final content mismatch: %q", msgs[len(msgs)-1].Content)
	}
	if s.Tick() {
		t.Fatal("Tick after completion should be a no-op")
	}
}

func TestEmptyReplyCompletesWithoutTicks(t *testing.T) {
	c := &fakeCompleter{model: "m", reply: ""}
	rec := &memoryRecorder{}
	s := newTestSession(c, WithRecorder(rec))

	if submitAndResolve(t, s, "hi") {
		t.Fatal("empty reply must not schedule ticks")
	}
	if s.Pending() || s.Revealing() {
		t.Fatal("expected pending cleared immediately")
	}

	msgs := s.Messages()
	if len(msgs) != 2 || msgs[1].Role != session.RoleAssistant || msgs[1].Content != "" {
		t.Fatalf("unexpected transcript: %+v", msgs)
	}
	if len(rec.entries) != 1 || rec.entries[0].Outcome != audit.OutcomeCompleted {
		t.Fatalf("unexpected audit entries: %+v", rec.entries)
	}
}

func TestStopFreezesPartialReply(t *testing.T) {
	c := &fakeCompleter{model: "m", reply: "abcdefgh"}
	rec := &memoryRecorder{}
	s := newTestSession(c, WithRecorder(rec))

	if !submitAndResolve(t, s, "hi") {
		t.Fatal("expected reveal to start")
	}
	for i := 0; i < 3; i++ {
		s.Tick()
	}
	s.Stop()

	if s.Pending() || s.Revealing() {
		t.Fatal("expected pending and reveal cleared by Stop")
	}
	for i := 0; i < 10; i++ {
		if s.Tick() {
			t.Fatal("Tick after Stop should report no more ticks")
		}
	}

	msgs := s.Messages()
	if got := msgs[len(msgs)-1].Content; got != "abc" {
		t.Fatalf("expected frozen content %q, got %q", "abc", got)
	}

	if len(rec.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(rec.entries))
	}
	e := rec.entries[0]
	if e.Outcome != audit.OutcomeStopped || e.RevealedChars != 3 || e.ResponseChars != 8 {
		t.Fatalf("unexpected audit entry: %+v", e)
	}
}

func TestUpstreamErrorBecomesTranscriptEntry(t *testing.T) {
	c := &fakeCompleter{model: "m", err: &backend.UpstreamError{StatusCode: 429, Body: "rate limited"}}
	rec := &memoryRecorder{}
	s := newTestSession(c, WithRecorder(rec))

	if submitAndResolve(t, s, "hi") {
		t.Fatal("error must not start a reveal")
	}
	if s.Pending() {
		t.Fatal("expected pending cleared")
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user and error messages, got %d", len(msgs))
	}
	if msgs[1].Role != session.RoleAssistant || msgs[1].Content != "Error: API Error: 429 - rate limited" {
		t.Fatalf("unexpected error message: %+v", msgs[1])
	}
	if len(rec.entries) != 1 || rec.entries[0].Outcome != audit.OutcomeFailed || rec.entries[0].StatusCode != 429 {
		t.Fatalf("unexpected audit entries: %+v", rec.entries)
	}

	if _, err := s.Submit("again"); err != nil {
		t.Fatalf("session should accept the next submission: %v", err)
	}
}

func TestNetworkErrorBecomesTranscriptEntry(t *testing.T) {
	c := &fakeCompleter{model: "m", err: &backend.NetworkError{Host: "openrouter.ai", Err: errors.New("dial tcp: no such host")}}
	s := newTestSession(c)

	submitAndResolve(t, s, "hi")

	msgs := s.Messages()
	if got := msgs[len(msgs)-1].Content; got != "Error: Network Error: failed to reach openrouter.ai" {
		t.Fatalf("unexpected error message: %q", got)
	}
}

func TestStopWhileRequestInFlightDropsResult(t *testing.T) {
	c := &fakeCompleter{model: "m", reply: "late"}
	s := newTestSession(c)

	req, err := s.Submit("hi")
	if err != nil || req == nil {
		t.Fatalf("Submit failed: %v", err)
	}
	s.Stop()
	if s.Pending() {
		t.Fatal("expected pending cleared")
	}

	if s.Resolve(s.Execute(context.Background(), req)) {
		t.Fatal("stale result must not start a reveal")
	}
	if len(s.Messages()) != 1 {
		t.Fatalf("stale result changed the transcript: %+v", s.Messages())
	}
}

func TestGenerationChangesPerReveal(t *testing.T) {
	c := &fakeCompleter{model: "m", reply: "ab"}
	s := newTestSession(c)

	submitAndResolve(t, s, "one")
	first := s.Generation()
	s.Stop()

	submitAndResolve(t, s, "two")
	if s.Generation() == first {
		t.Fatal("expected a new generation for the second reveal")
	}
}

func TestResetRefusedWhilePending(t *testing.T) {
	c := &fakeCompleter{model: "m", reply: "ab"}
	s := newTestSession(c, WithGreeting("hello"))
	id := s.SessionID()

	s.Submit("hi")
	if s.Reset() {
		t.Fatal("Reset should be refused while pending")
	}
	s.Stop()

	if !s.Reset() {
		t.Fatal("Reset should succeed when idle")
	}
	if s.SessionID() == id {
		t.Fatal("expected a new session id")
	}
	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("expected fresh greeting-only transcript, got %+v", msgs)
	}
}

func TestSetModel(t *testing.T) {
	c := &fakeCompleter{model: "a"}
	s := newTestSession(c)
	s.SetModel("b")
	if s.Model() != "b" || c.model != "b" {
		t.Fatalf("model not switched: %s / %s", s.Model(), c.model)
	}
}
