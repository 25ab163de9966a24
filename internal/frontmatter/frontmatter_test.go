package frontmatter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/internal/frontmatter"
)

func TestParse(t *testing.T) {
	raw := []byte("---\nid: msg-1\nprovider: dingtalk\ncontent:\n  text: hello\n---\nbody text\n")

	meta, body, err := frontmatter.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", meta["id"])
	assert.Equal(t, "dingtalk", meta["provider"])
	assert.Equal(t, "body text\n", body)
}

func TestParse_NoFence(t *testing.T) {
	_, body, err := frontmatter.Parse([]byte("just a body"))
	require.ErrorIs(t, err, frontmatter.ErrNoFrontmatter)
	assert.Equal(t, "just a body", body)
}

func TestWriteParseRoundTrip(t *testing.T) {
	meta := map[string]any{
		"id":       "msg-2",
		"provider": "dingtalk",
	}

	raw, err := frontmatter.Write(meta, "hello world")
	require.NoError(t, err)

	parsed, body, err := frontmatter.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, meta["id"], parsed["id"])
	assert.Equal(t, meta["provider"], parsed["provider"])
	assert.Equal(t, "hello world", body)
}

func TestStringField_Nested(t *testing.T) {
	meta := map[string]any{
		"content": map[string]any{"text": "hi"},
	}

	v, ok := frontmatter.StringField(meta, "content.text")
	assert.True(t, ok)
	assert.Equal(t, "hi", v)

	_, ok = frontmatter.StringField(meta, "content.markdown")
	assert.False(t, ok)
}

func TestRequireFields(t *testing.T) {
	meta := map[string]any{"id": "msg-3", "provider": "dingtalk"}
	assert.NoError(t, frontmatter.RequireFields(meta, "id", "provider"))

	err := frontmatter.RequireFields(meta, "id", "session.id")
	assert.Error(t, err)
}
