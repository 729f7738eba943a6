// Package reconciler merges optimistic local sends with server-confirmed messages on the
// client side of a conversation.
package reconciler

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-gateway/internal/models"
	"chat-gateway/internal/validation"
)

// TempPrefix marks ids assigned to messages the server has not confirmed yet.
const TempPrefix = "temp_"

// State is the local delivery state of a timeline entry.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// Outcome reports how Apply merged a server message.
type Outcome int

const (
	Ignored Outcome = iota
	Duplicate
	Replaced
	Appended
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Replaced:
		return "replaced"
	case Appended:
		return "appended"
	}
	return "ignored"
}

// Entry is one message in the local timeline.
type Entry struct {
	models.MessageView
	State State  `json:"state"`
	Err   string `json:"error,omitempty"`
}

// Optimistic reports whether the entry still carries a temporary id.
func (e Entry) Optimistic() bool {
	return IsTempID(e.ID)
}

// IsTempID reports whether id was assigned locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}

// Timeline holds the ordered messages of one conversation.
type Timeline struct {
	mu             sync.Mutex
	conversationID string
	entries        []Entry
	replaced       map[string]string
	now            func() time.Time
}

func NewTimeline(conversationID string) *Timeline {
	return &Timeline{conversationID: conversationID, replaced: make(map[string]string), now: time.Now}
}

func (t *Timeline) ConversationID() string {
	return t.conversationID
}

// Reset replaces the timeline with confirmed history, oldest first.
func (t *Timeline) Reset(history []models.MessageView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make([]Entry, 0, len(history))
	for _, m := range history {
		t.entries = append(t.entries, Entry{MessageView: m, State: StateConfirmed})
	}
}

// AddOptimistic appends a pending local copy of an outgoing message.
func (t *Timeline) AddOptimistic(sender models.UserRef, content, msgType string) Entry {
	if msgType == "" {
		msgType = models.MessageText
	}
	e := Entry{
		MessageView: models.MessageView{
			ID:             TempPrefix + uuid.NewString(),
			ConversationID: t.conversationID,
			Sender:         sender,
			Content:        content,
			Type:           msgType,
			Status:         models.StatusSent,
			CreatedAt:      t.now().UTC(),
		},
		State: StatePending,
	}
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
	return e
}

// Apply merges a server message. Redelivery of a known id is a no-op.
func (t *Timeline) Apply(msg models.MessageView) Outcome {
	if msg.ConversationID != t.conversationID || msg.ID == "" {
		return Ignored
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.ID == msg.ID {
			return Duplicate
		}
	}

	content := validation.SanitizeString(msg.Content)
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if !e.Optimistic() || e.Sender.ID != msg.Sender.ID {
			continue
		}
		if validation.SanitizeString(e.Content) == content {
			t.replaced[e.ID] = msg.ID
			t.entries[i] = Entry{MessageView: msg, State: StateConfirmed}
			return Replaced
		}
	}

	t.entries = append(t.entries, Entry{MessageView: msg, State: StateConfirmed})
	return Appended
}

// MarkFailed flags an optimistic entry as failed. The entry stays in the timeline.
func (t *Timeline) MarkFailed(tempID, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(tempID)
	if i < 0 || !t.entries[i].Optimistic() {
		return false
	}
	t.entries[i].State = StateFailed
	t.entries[i].Err = reason
	return true
}

// Resolved returns the confirmed entry that replaced the optimistic entry tempID.
func (t *Timeline) Resolved(tempID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.replaced[tempID]
	if !ok {
		return Entry{}, false
	}
	i := t.indexLocked(id)
	if i < 0 {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Retry moves a failed entry back to pending and returns it for resending.
func (t *Timeline) Retry(tempID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(tempID)
	if i < 0 || t.entries[i].State != StateFailed {
		return Entry{}, false
	}
	t.entries[i].State = StatePending
	t.entries[i].Err = ""
	return t.entries[i], true
}

// ApplyDelivered raises the listed messages to delivered and returns how many changed.
func (t *Timeline) ApplyDelivered(ids []string) int {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := 0
	for i := range t.entries {
		if _, ok := want[t.entries[i].ID]; ok && raise(&t.entries[i], models.StatusDelivered) {
			changed++
		}
	}
	return changed
}

// ApplyRead marks every confirmed message not sent by readerID as read by them.
func (t *Timeline) ApplyRead(readerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := 0
	readAt := t.now().UTC()
	for i := range t.entries {
		e := &t.entries[i]
		if e.Optimistic() || e.Sender.ID == readerID {
			continue
		}
		if !hasReceipt(e.ReadBy, readerID) {
			e.ReadBy = append(e.ReadBy, models.ReadReceipt{UserID: readerID, ReadAt: readAt})
		}
		if raise(e, models.StatusRead) {
			changed++
		}
	}
	return changed
}

// Entries returns a copy of the timeline, oldest first.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Pending returns the optimistic entries still awaiting confirmation.
func (t *Timeline) Pending() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Entry
	for _, e := range t.entries {
		if e.State == StatePending {
			out = append(out, e)
		}
	}
	return out
}

func (t *Timeline) indexLocked(id string) int {
	for i, e := range t.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func raise(e *Entry, status string) bool {
	if models.StatusRank(status) <= models.StatusRank(e.Status) {
		return false
	}
	e.Status = status
	return true
}

func hasReceipt(receipts []models.ReadReceipt, userID string) bool {
	for _, r := range receipts {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
