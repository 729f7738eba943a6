package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, DirectKey("a", "b"), DirectKey("b", "a"))
	assert.Equal(t, "a:b", DirectKey("b", "a"))
}

func TestDisplayName(t *testing.T) {
	users := map[string]UserRef{
		"u1": {ID: "u1", Name: "Ann"},
		"u2": {ID: "u2", Name: "Bob"},
	}
	direct := Conversation{Type: ConversationDirect, Participants: []string{"u1", "u2"}}
	assert.Equal(t, "Bob", DisplayName(direct, "u1", users))
	assert.Equal(t, "Ann", DisplayName(direct, "u2", users))

	ghost := Conversation{Type: ConversationDirect, Participants: []string{"u1", "u9"}}
	assert.Equal(t, "Unknown", DisplayName(ghost, "u1", users))

	group := Conversation{Type: ConversationGroup, Name: "Team", Participants: []string{"u1", "u2"}}
	assert.Equal(t, "Team", DisplayName(group, "u1", users))
}

func TestStatusRankIsMonotonic(t *testing.T) {
	assert.Less(t, StatusRank(StatusSent), StatusRank(StatusDelivered))
	assert.Less(t, StatusRank(StatusDelivered), StatusRank(StatusRead))
	assert.Zero(t, StatusRank("bogus"))
}

func TestValidMessageType(t *testing.T) {
	for _, typ := range []string{MessageText, MessageImage, MessageFile, MessageSystem} {
		assert.True(t, ValidMessageType(typ))
	}
	assert.False(t, ValidMessageType("video"))
}

func TestNewConversationViewFillsUnknownParticipants(t *testing.T) {
	conv := Conversation{ID: "c1", Type: ConversationDirect, Participants: []string{"u1", "u2"}}
	view := NewConversationView(conv, "u1", map[string]UserRef{"u1": {ID: "u1", Name: "Ann"}}, nil)
	assert.Equal(t, "Unknown", view.Name)
	assert.Len(t, view.Participants, 2)
	assert.Equal(t, UnknownUser("u2"), view.Participants[1])
	assert.Nil(t, view.LastMessage)
}
