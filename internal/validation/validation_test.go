package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	cases := map[string]string{
		"  hello  ":                           "hello",
		"<script>alert(1)</script>hi":         "hi",
		"a<SCRIPT type=x>\nbad()\n</script>b": "ab",
		"<iframe src=evil></iframe>ok":        "ok",
		`<img src=x onerror=alert(1)>`:        `<img src=x alert(1)>`,
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeString(in), "input %q", in)
	}
}

func TestMessageContentBounds(t *testing.T) {
	_, err := MessageContent("")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = MessageContent("   \n\t ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = MessageContent("<script>only()</script>")
	assert.ErrorIs(t, err, ErrEmptyContent)

	got, err := MessageContent(strings.Repeat("a", 5000))
	require.NoError(t, err)
	assert.Len(t, got, 5000)

	_, err = MessageContent(strings.Repeat("a", 5001))
	assert.ErrorIs(t, err, ErrContentTooLong)
}

func TestMessageContentCountsCharactersNotBytes(t *testing.T) {
	got, err := MessageContent(strings.Repeat("é", 5000))
	require.NoError(t, err)
	assert.Equal(t, 5000, len([]rune(got)))
}

func TestIsObjectID(t *testing.T) {
	assert.True(t, IsObjectID("64b7f0c2a1b2c3d4e5f60718"))
	assert.True(t, IsObjectID("64B7F0C2A1B2C3D4E5F60718"))
	assert.False(t, IsObjectID(""))
	assert.False(t, IsObjectID("64b7f0c2a1b2c3d4e5f6071"))
	assert.False(t, IsObjectID("zzb7f0c2a1b2c3d4e5f60718"))
	assert.False(t, IsObjectID("a1"))
}

func TestConversationName(t *testing.T) {
	name, err := ConversationName("")
	require.NoError(t, err)
	assert.Empty(t, name)

	_, err = ConversationName("   ")
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = ConversationName(strings.Repeat("n", 101))
	assert.ErrorIs(t, err, ErrNameTooLong)

	name, err = ConversationName(" Team ")
	require.NoError(t, err)
	assert.Equal(t, "Team", name)
}

func TestStructTags(t *testing.T) {
	type payload struct {
		ConversationID string   `validate:"required,objectid"`
		Type           string   `validate:"msgtype"`
		MessageIDs     []string `validate:"dive,objectid"`
	}

	assert.NoError(t, Struct(payload{ConversationID: "64b7f0c2a1b2c3d4e5f60718"}))
	assert.NoError(t, Struct(payload{ConversationID: "64b7f0c2a1b2c3d4e5f60718", Type: "image"}))
	assert.Error(t, Struct(payload{ConversationID: "nope"}))
	assert.Error(t, Struct(payload{ConversationID: "64b7f0c2a1b2c3d4e5f60718", Type: "video"}))
	assert.Error(t, Struct(payload{ConversationID: "64b7f0c2a1b2c3d4e5f60718", MessageIDs: []string{"x"}}))
}
