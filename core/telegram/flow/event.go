package flow

import (
	"context"
	"strings"
	"sync"
	"time"
)

// TriggerKind discriminates the decoded inbound trigger variants.
type TriggerKind int

const (
	// TriggerText is free-form message text.
	TriggerText TriggerKind = iota
	// TriggerCommand is a slash command such as "/start".
	TriggerCommand
	// TriggerCallback is an inline keyboard button press.
	TriggerCallback
)

// Trigger is the tagged decoding of an inbound update, produced once at the
// transport boundary so handlers never string-split raw payloads.
type Trigger struct {
	Kind    TriggerKind
	Command string // set for TriggerCommand, includes the leading slash
	Key     string // set for TriggerCallback
	Payload string // optional callback payload after the key
	Text    string // set for TriggerText
}

// Command builds a command trigger.
func Command(name string) Trigger {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return Trigger{Kind: TriggerCommand, Command: name}
}

// Callback builds a callback trigger with an optional payload.
func Callback(key, payload string) Trigger {
	return Trigger{Kind: TriggerCallback, Key: key, Payload: payload}
}

// Text builds a free-text trigger.
func Text(text string) Trigger {
	return Trigger{Kind: TriggerText, Text: text}
}

// DecodeText classifies raw message text into a command or text trigger.
func DecodeText(raw string) Trigger {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "/") {
		cmd := trimmed
		if i := strings.IndexAny(cmd, " \t"); i > 0 {
			cmd = cmd[:i]
		}
		// "/cmd@BotName" arrives in group chats
		if i := strings.Index(cmd, "@"); i > 0 {
			cmd = cmd[:i]
		}
		return Trigger{Kind: TriggerCommand, Command: cmd, Text: trimmed}
	}
	return Text(trimmed)
}

// Claim is a single-use marker scoped to one event's processing context.
// It is set at most once by the handler that claims the event and cleared
// at most once by the recovery inspection that follows.
type Claim struct {
	mu      sync.Mutex
	handled bool
}

// Mark records that a handler claimed the event.
func (c *Claim) Mark() {
	c.mu.Lock()
	c.handled = true
	c.mu.Unlock()
}

// CheckAndClear reports whether the event was claimed and resets the tag so
// the next event starts unmarked.
func (c *Claim) CheckAndClear() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	handled := c.handled
	c.handled = false
	return handled
}

// Event is one inbound update, decoded and carrying its claim tag.
type Event struct {
	UserID   int64
	Username string
	Trigger  Trigger
	Time     time.Time

	claim *Claim
}

// NewEvent builds an event with a fresh claim tag.
func NewEvent(userID int64, username string, trig Trigger) *Event {
	return &Event{
		UserID:   userID,
		Username: username,
		Trigger:  trig,
		Time:     time.Now(),
		claim:    &Claim{},
	}
}

// MarkHandled tags the event as claimed by a handler.
func (e *Event) MarkHandled() {
	if e.claim != nil {
		e.claim.Mark()
	}
}

// CheckAndClear atomically reads and resets the claim tag.
func (e *Event) CheckAndClear() bool {
	if e.claim == nil {
		return false
	}
	return e.claim.CheckAndClear()
}

// Choice is one selectable option attached to a reply; pressing it comes
// back as the given callback trigger.
type Choice struct {
	Label   string
	Key     string
	Payload string
}

// Reply is a platform-neutral outbound instruction. The transport binding
// renders Choices as an inline keyboard.
type Reply struct {
	Text    string
	Choices [][]Choice
	// Edit asks the binding to edit the message the triggering callback
	// originated from instead of sending a new one.
	Edit bool
}

// Responder delivers reply instructions to a user. Implementations own all
// platform-specific payload construction.
type Responder interface {
	Send(ctx context.Context, userID int64, reply Reply) error
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, userID int64, reply Reply) error

// Send executes the underlying function.
func (f ResponderFunc) Send(ctx context.Context, userID int64, reply Reply) error {
	return f(ctx, userID, reply)
}
