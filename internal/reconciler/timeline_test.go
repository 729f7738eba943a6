package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/models"
)

const conv = "64b000000000000000000001"

var (
	alice = models.UserRef{ID: "64a000000000000000000001", Name: "Alice"}
	bob   = models.UserRef{ID: "64a000000000000000000002", Name: "Bob"}
)

func serverMessage(id string, sender models.UserRef, content string) models.MessageView {
	return models.MessageView{ID: id, ConversationID: conv, Sender: sender, Content: content, Type: models.MessageText, Status: models.StatusSent}
}

func TestApplyReplacesOptimisticEntry(t *testing.T) {
	tl := NewTimeline(conv)
	local := tl.AddOptimistic(alice, "  hello ", "")
	assert.True(t, IsTempID(local.ID))
	assert.Equal(t, StatePending, local.State)

	out := tl.Apply(serverMessage("m1", alice, "hello"))
	assert.Equal(t, Replaced, out)

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)
	assert.Equal(t, StateConfirmed, entries[0].State)
	assert.False(t, entries[0].Optimistic())
}

func TestApplyIsIdempotent(t *testing.T) {
	tl := NewTimeline(conv)
	tl.AddOptimistic(alice, "hi", models.MessageText)

	msg := serverMessage("m1", alice, "hi")
	assert.Equal(t, Replaced, tl.Apply(msg))
	assert.Equal(t, Duplicate, tl.Apply(msg))
	assert.Equal(t, Duplicate, tl.Apply(msg))
	assert.Len(t, tl.Entries(), 1)
}

func TestApplyMatchesMostRecentOptimisticEntry(t *testing.T) {
	tl := NewTimeline(conv)
	first := tl.AddOptimistic(alice, "same", "")
	second := tl.AddOptimistic(alice, "same", "")

	assert.Equal(t, Replaced, tl.Apply(serverMessage("m1", alice, "same")))
	entries := tl.Entries()
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, "m1", entries[1].ID)
	assert.NotEqual(t, second.ID, entries[1].ID)
}

func TestApplyAppendsForeignAndUnmatched(t *testing.T) {
	tl := NewTimeline(conv)
	tl.AddOptimistic(alice, "hi", "")

	assert.Equal(t, Appended, tl.Apply(serverMessage("m1", bob, "hi")))
	assert.Equal(t, Appended, tl.Apply(serverMessage("m2", alice, "different")))
	assert.Equal(t, Ignored, tl.Apply(models.MessageView{ID: "m3", ConversationID: "other"}))
	assert.Len(t, tl.Entries(), 3)
}

func TestMarkFailedKeepsEntryAndRetry(t *testing.T) {
	tl := NewTimeline(conv)
	local := tl.AddOptimistic(alice, "hi", "")

	_, ok := tl.Retry(local.ID)
	assert.False(t, ok, "pending entries cannot be retried")

	require.True(t, tl.MarkFailed(local.ID, "not a participant"))
	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, StateFailed, entries[0].State)
	assert.Equal(t, "not a participant", entries[0].Err)
	assert.Empty(t, tl.Pending())

	retried, ok := tl.Retry(local.ID)
	require.True(t, ok)
	assert.Equal(t, StatePending, retried.State)
	assert.Empty(t, retried.Err)
	assert.Len(t, tl.Pending(), 1)

	assert.False(t, tl.MarkFailed("temp_missing", "x"))
}

func TestMarkFailedIgnoresConfirmed(t *testing.T) {
	tl := NewTimeline(conv)
	tl.Reset([]models.MessageView{serverMessage("m1", bob, "hi")})
	assert.False(t, tl.MarkFailed("m1", "x"))
}

func TestStatusUpdatesAreMonotonic(t *testing.T) {
	tl := NewTimeline(conv)
	tl.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	tl.Reset([]models.MessageView{
		serverMessage("m1", alice, "one"),
		serverMessage("m2", alice, "two"),
		serverMessage("m3", bob, "three"),
	})

	assert.Equal(t, 1, tl.ApplyDelivered([]string{"m1"}))
	assert.Equal(t, 0, tl.ApplyDelivered([]string{"m1"}))

	assert.Equal(t, 2, tl.ApplyRead(bob.ID))
	assert.Equal(t, 0, tl.ApplyRead(bob.ID))
	assert.Equal(t, 0, tl.ApplyDelivered([]string{"m1", "m2"}))

	entries := tl.Entries()
	assert.Equal(t, models.StatusRead, entries[0].Status)
	assert.Equal(t, models.StatusRead, entries[1].Status)
	assert.Equal(t, models.StatusSent, entries[2].Status)
	require.Len(t, entries[0].ReadBy, 1)
	assert.Equal(t, bob.ID, entries[0].ReadBy[0].UserID)
}

func TestApplyReadSkipsOptimisticEntries(t *testing.T) {
	tl := NewTimeline(conv)
	tl.AddOptimistic(alice, "hi", "")
	assert.Equal(t, 0, tl.ApplyRead(bob.ID))
}

func TestResolvedFindsReplacement(t *testing.T) {
	tl := NewTimeline(conv)
	local := tl.AddOptimistic(alice, "hi", "")

	_, ok := tl.Resolved(local.ID)
	assert.False(t, ok)

	tl.Apply(serverMessage("m1", alice, "hi"))
	assert.False(t, tl.MarkFailed(local.ID, "timed out"))

	got, ok := tl.Resolved(local.ID)
	require.True(t, ok)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, StateConfirmed, got.State)
}
