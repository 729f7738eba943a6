package service

import (
	"errors"

	"chat-gateway/internal/repositories"
	"chat-gateway/internal/validation"
)

var (
	ErrUnauthenticated         = errors.New("authentication required")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidConversationID   = errors.New("invalid conversation id")
	ErrInvalidMessageIDs       = errors.New("invalid message ids")
	ErrInvalidMessageType      = errors.New("invalid message type")
	ErrInvalidConversationType = errors.New("conversation type must be direct or group")
	ErrDirectParticipants      = errors.New("direct conversations require exactly one other participant")
	ErrGroupParticipants       = errors.New("group conversations require 2 to 50 participants")
	ErrParticipantNotFound     = errors.New("participant not found")
	ErrNotParticipant          = errors.New("not a participant of this conversation")
)

// Kind classifies failures at transport boundaries.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	default:
		return "persistence"
	}
}

var kindTable = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{
		ErrInvalidInput,
		ErrInvalidConversationID,
		ErrInvalidMessageIDs,
		ErrInvalidMessageType,
		ErrInvalidConversationType,
		ErrDirectParticipants,
		ErrGroupParticipants,
		ErrParticipantNotFound,
		repositories.ErrSelfConversation,
		validation.ErrEmptyContent,
		validation.ErrContentTooLong,
		validation.ErrEmptyName,
		validation.ErrNameTooLong,
		validation.ErrInvalidObjectID,
	}},
	{KindAuthentication, []error{ErrUnauthenticated, repositories.ErrUserNotFound}},
	{KindAuthorization, []error{ErrNotParticipant}},
	{KindNotFound, []error{repositories.ErrConversationNotFound, repositories.ErrMessageNotFound}},
}

// KindOf classifies err. Anything unrecognised is a persistence failure.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindTable {
		for _, target := range entry.errs {
			if errors.Is(err, target) {
				return entry.kind
			}
		}
	}
	return KindPersistence
}
