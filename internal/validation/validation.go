// Package validation holds the input rules shared by the WebSocket gateway and
// the HTTP fallback.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"chat-gateway/internal/models"
)

var (
	ErrEmptyContent    = errors.New("message content cannot be empty")
	ErrContentTooLong  = errors.New("message content must not exceed 5000 characters")
	ErrEmptyName       = errors.New("conversation name cannot be empty")
	ErrNameTooLong     = errors.New("conversation name must not exceed 100 characters")
	ErrInvalidObjectID = errors.New("invalid id format")
)

var (
	scriptRe  = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	iframeRe  = regexp.MustCompile(`(?is)<iframe\b.*?</iframe\s*>`)
	handlerRe = regexp.MustCompile(`(?i)on\w+\s*=`)
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return IsObjectID(fl.Field().String())
	})
	_ = validate.RegisterValidation("msgtype", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		return v == "" || models.ValidMessageType(v)
	})
}

// Struct validates a struct against its `validate` tags.
func Struct(v any) error {
	return validate.Struct(v)
}

// Var validates a single value against a tag expression.
func Var(v any, tag string) error {
	return validate.Var(v, tag)
}

// IsObjectID reports whether id has the store's primary-key format (24 hex characters).
func IsObjectID(id string) bool {
	if len(id) != 24 {
		return false
	}
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

// SanitizeString strips script and iframe blocks and inline event handlers, then trims.
func SanitizeString(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = iframeRe.ReplaceAllString(s, "")
	s = handlerRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// MessageContent sanitizes content and enforces the 1..5000 character bounds.
func MessageContent(content string) (string, error) {
	clean := SanitizeString(content)
	n := utf8.RuneCountInString(clean)
	if n == 0 {
		return "", ErrEmptyContent
	}
	if n > models.MaxMessageContent {
		return "", ErrContentTooLong
	}
	return clean, nil
}

// ConversationName validates an optional conversation name. An empty input is allowed
// and returned unchanged.
func ConversationName(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(name) > models.MaxConversationName {
		return "", ErrNameTooLong
	}
	return SanitizeString(name), nil
}

// ObjectIDs checks every id in ids.
func ObjectIDs(ids []string) error {
	for _, id := range ids {
		if !IsObjectID(id) {
			return ErrInvalidObjectID
		}
	}
	return nil
}
