package ap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePosts_MastodonShape(t *testing.T) {
	body := []byte(`[
		{"uri":"https://a.example/posts/1","id":"1","created_at":"2026-01-01T00:00:00Z"},
		{"uri":"https://a.example/posts/2","id":"2","created_at":"2026-01-02T00:00:00Z","in_reply_to_id":"1"}
	]`)

	posts, err := DecodePosts(body)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "https://a.example/posts/1", posts[0].URI)
	assert.False(t, posts[0].IsReply())
	assert.True(t, posts[1].IsReply())
}

func TestDecodePosts_Reblog(t *testing.T) {
	body := []byte(`[{"uri":"https://a.example/posts/2","id":"2","created_at":"x",
		"reblog":{"uri":"https://b.example/posts/1","id":"1","created_at":"y"}}]`)

	posts, err := DecodePosts(body)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.NotNil(t, posts[0].Reblog)
	assert.Equal(t, "https://b.example/posts/1", posts[0].Origin().URI)
}

func TestDecodeMisskeyPosts_SupplementsURI(t *testing.T) {
	body := []byte(`[{"id":"abc123","createdAt":"2026-01-01T00:00:00Z"}]`)

	posts, err := DecodeMisskeyPosts(body, "misskey.example")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "https://misskey.example/notes/abc123", posts[0].URI)
	assert.Equal(t, "abc123", posts[0].TimelineID)
}

func TestDecodeMisskeyPosts_NestedRenote(t *testing.T) {
	body := []byte(`[{"id":"2","createdAt":"x","renote":{"id":"1","createdAt":"y"}}]`)

	posts, err := DecodeMisskeyPosts(body, "misskey.example")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.NotNil(t, posts[0].Reblog)
	assert.Equal(t, "https://misskey.example/notes/1", posts[0].Reblog.URI)
}

func TestDecodeMisskeyPosts_MissingID(t *testing.T) {
	body := []byte(`[{"createdAt":"2026-01-01T00:00:00Z"}]`)
	_, err := DecodeMisskeyPosts(body, "misskey.example")
	assert.Error(t, err)
}

func TestDecodePosts_InvalidJSON(t *testing.T) {
	_, err := DecodePosts([]byte(`not json`))
	assert.Error(t, err)
}
