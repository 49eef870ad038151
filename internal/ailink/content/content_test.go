package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" User ")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)

	_, err = ParseRole("tool")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.Error(t, Validate(nil))
	require.Error(t, Validate([]Message{{Role: "robot", Content: []ContentBlock{{Type: ContentTypeText, Text: "hi"}}}}))
	require.Error(t, Validate([]Message{User("   ")}))
	require.NoError(t, Validate([]Message{System("be brief"), User("hi"), Assistant("hello")}))
}

func TestSplitSystem(t *testing.T) {
	sys, rest := SplitSystem([]Message{System("a"), User("q"), System("b"), Assistant("r")})
	assert.Equal(t, "a\n\nb", sys)
	require.Len(t, rest, 2)
	assert.Equal(t, RoleUser, rest[0].Role)
	assert.Equal(t, RoleAssistant, rest[1].Role)
}

func TestJoinTextSkipsEmpty(t *testing.T) {
	text := JoinText([]ContentBlock{{Type: ContentTypeText, Text: "one"}, {Type: ContentTypeText}, {Type: ContentTypeJSON, Text: "{}"}})
	assert.Equal(t, "one\n{}", text)
}
