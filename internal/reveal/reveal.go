// Package reveal discloses an already received reply one character at a time.
package reveal

import (
	"context"
	"time"
)

// DefaultInterval is the period between two revealed characters.
const DefaultInterval = 20 * time.Millisecond

// Typewriter walks the runes of a full reply in source order.
type Typewriter struct {
	runes  []rune
	cursor int
}

// NewTypewriter creates a typewriter positioned before the first rune of text.
func NewTypewriter(text string) *Typewriter {
	return &Typewriter{runes: []rune(text)}
}

// Next returns the next rune and advances the cursor. It reports false once
// every rune has been returned.
func (t *Typewriter) Next() (rune, bool) {
	if t.cursor >= len(t.runes) {
		return 0, false
	}
	r := t.runes[t.cursor]
	t.cursor++
	return r, true
}

// Done reports whether the whole text has been revealed.
func (t *Typewriter) Done() bool {
	return t.cursor >= len(t.runes)
}

// Revealed returns the number of runes returned so far.
func (t *Typewriter) Revealed() int {
	return t.cursor
}

// Len returns the number of runes in the full text.
func (t *Typewriter) Len() int {
	return len(t.runes)
}

// Stepper is driven by a reveal timer. Tick reveals one character and reports
// whether more ticks are needed; Stop abandons the reveal.
type Stepper interface {
	Tick() bool
	Stop()
}

// Drive ticks s once per interval until it reports completion or ctx is
// cancelled. The ticker never outlives the call. On cancellation s is stopped
// and ctx.Err() is returned.
func Drive(ctx context.Context, interval time.Duration, s Stepper) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-ticker.C:
			if !s.Tick() {
				return nil
			}
		}
	}
}
