package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"GPTAssistant/internal/audit"
	"GPTAssistant/internal/reveal"
	"GPTAssistant/internal/session"
)

// TurnLister reads back audited turns
type TurnLister interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]audit.Entry, error)
}

// Runner is the plain line-oriented front end
type Runner struct {
	session  *Session
	in       io.Reader
	out      io.Writer
	interval time.Duration
	logger   *slog.Logger
	turns    TurnLister

	// interrupt returns a context cancelled when the user asks to stop.
	interrupt func(ctx context.Context) (context.Context, context.CancelFunc)
}

// NewRunner creates a REPL over sess. turns may be nil.
func NewRunner(sess *Session, in io.Reader, out io.Writer, interval time.Duration, logger *slog.Logger, turns TurnLister) *Runner {
	return &Runner{
		session:  sess,
		in:       in,
		out:      out,
		interval: interval,
		logger:   logger,
		turns:    turns,
		interrupt: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	}
}

// Run reads lines until EOF or /quit
func (r *Runner) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "=== GPT Assistant ===")
	fmt.Fprintf(r.out, "Session: %s\n", r.session.SessionID())
	fmt.Fprintf(r.out, "Model: %s\n", r.session.Model())
	fmt.Fprintln(r.out, "Type /help for commands, /quit to exit. Ctrl+C stops a reply.")
	fmt.Fprintln(r.out)
	r.printTranscript()

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "You: ")
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "/") {
			shouldQuit, err := r.handleCommand(ctx, trimmed)
			if err != nil {
				fmt.Fprintf(r.out, "Error: %v\n", err)
				r.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if err := r.turn(ctx, line); err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintln(r.out, "Goodbye!")
	return nil
}

// turn runs one submission through request and reveal. An interrupt while
// waiting drops the reply; an interrupt while revealing truncates it.
func (r *Runner) turn(ctx context.Context, text string) error {
	req, err := r.session.Submit(text)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}

	stopCtx, stop := r.interrupt(ctx)
	defer stop()

	done := make(chan Result, 1)
	go func() {
		done <- r.session.Execute(context.WithoutCancel(ctx), req)
	}()

	var res Result
	select {
	case res = <-done:
	case <-stopCtx.Done():
		r.session.Stop()
		fmt.Fprintln(r.out, "\n[stopped]")
		return nil
	}

	fmt.Fprint(r.out, "Bot: ")
	if !r.session.Resolve(res) {
		r.printLastReply()
		return nil
	}

	printer := &revealPrinter{session: r.session, out: r.out}
	if err := reveal.Drive(stopCtx, r.interval, printer); err != nil {
		fmt.Fprint(r.out, " [stopped]")
	}
	fmt.Fprint(r.out, "\n\n")
	return nil
}

// printLastReply writes a reply that was not revealed (errors, empty replies)
func (r *Runner) printLastReply() {
	msgs := r.session.Messages()
	if len(msgs) == 0 {
		return
	}
	fmt.Fprintf(r.out, "%s\n\n", msgs[len(msgs)-1].Content)
}

func (r *Runner) printTranscript() {
	for _, msg := range r.session.Messages() {
		label := "You"
		if msg.Role != session.RoleUser {
			label = "Bot"
		}
		fmt.Fprintf(r.out, "%s: %s\n\n", label, msg.Content)
	}
}

// revealPrinter echoes every revealed character as it is appended
type revealPrinter struct {
	session *Session
	out     io.Writer
	printed int
}

func (p *revealPrinter) Tick() bool {
	more := p.session.Tick()
	msgs := p.session.Messages()
	if len(msgs) > 0 {
		content := msgs[len(msgs)-1].Content
		if len(content) > p.printed {
			io.WriteString(p.out, content[p.printed:])
			p.printed = len(content)
		}
	}
	return more
}

func (p *revealPrinter) Stop() {
	p.session.Stop()
}

// handleCommand handles slash commands
func (r *Runner) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new-session":
		if !r.session.Reset() {
			return false, fmt.Errorf("a reply is still pending")
		}
		fmt.Fprintln(r.out, "Started new session:", r.session.SessionID())
		r.printTranscript()
		return false, nil

	case "/model":
		if len(parts) < 2 {
			fmt.Fprintf(r.out, "Model: %s\n", r.session.Model())
			return false, nil
		}
		r.session.SetModel(parts[1])
		fmt.Fprintf(r.out, "Model set to: %s\n", parts[1])
		return false, nil

	case "/turns":
		if r.turns == nil {
			fmt.Fprintln(r.out, "Turn audit is disabled.")
			return false, nil
		}
		entries, err := r.turns.Recent(ctx, r.session.SessionID(), 10)
		if err != nil {
			return false, fmt.Errorf("failed to list turns: %w", err)
		}
		if len(entries) == 0 {
			fmt.Fprintln(r.out, "No turns yet.")
			return false, nil
		}
		for i, e := range entries {
			fmt.Fprintf(r.out, "%d. %s %s %d/%d chars in %s\n",
				i+1, e.Timestamp.Local().Format("15:04:05"), e.Outcome, e.RevealedChars, e.ResponseChars, e.Duration)
		}
		return false, nil

	case "/help":
		fmt.Fprintln(r.out, "Available commands:")
		fmt.Fprintln(r.out, "  /quit, /exit     - Exit the assistant")
		fmt.Fprintln(r.out, "  /new-session     - Start a new chat session")
		fmt.Fprintln(r.out, "  /model [name]    - Show or switch the model")
		fmt.Fprintln(r.out, "  /turns           - Show recent turns of this session")
		fmt.Fprintln(r.out, "  /help            - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s", parts[0])
	}
}
