package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single chat message
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn is the upstream projection of a Message: role and content only.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is the append-only, insertion-ordered list of messages.
// The only in-place mutation is AppendToLast, used while a reply is revealed.
type Transcript struct {
	messages []Message
}

// Append adds a message at the end of the transcript
func (t *Transcript) Append(msg Message) {
	t.messages = append(t.messages, msg)
}

// AppendToLast extends the content of the last message. It reports false when
// the transcript is empty.
func (t *Transcript) AppendToLast(s string) bool {
	if len(t.messages) == 0 {
		return false
	}
	t.messages[len(t.messages)-1].Content += s
	return true
}

// Last returns the last message, if any
func (t *Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the transcript in order
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Projection returns the role/content pairs sent upstream, in transcript order.
func (t *Transcript) Projection() []Turn {
	turns := make([]Turn, len(t.messages))
	for i, msg := range t.messages {
		turns[i] = Turn{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return turns
}

// Session represents a chat session
type Session struct {
	ID         string
	StartTime  time.Time
	Model      string
	Transcript Transcript
}

// New creates a session with a time-ordered ID. A non-empty greeting is
// seeded as the first assistant message.
func New(model, greeting string, now time.Time) *Session {
	sess := &Session{
		ID:        NewID(),
		StartTime: now,
		Model:     model,
	}
	if greeting != "" {
		sess.Transcript.Append(Message{
			Role:      RoleAssistant,
			Content:   greeting,
			Timestamp: now,
		})
	}
	return sess
}

// NewID generates a time-ordered UUID v7.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
