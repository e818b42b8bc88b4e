package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalActor_URIAndPath(t *testing.T) {
	completion := NewCompletionActor("relay.example")
	assert.Equal(t, "/completion", completion.Path())
	assert.Equal(t, "https://relay.example/completion", completion.URI())
	assert.Equal(t, "https://relay.example/completion#key", completion.KeyID())
	assert.Equal(t, completion.URI(), completion.InboxURI())

	trends := NewTrendsActor("relay.example", "other.example")
	assert.Equal(t, "/trends/other.example", trends.Path())
	assert.Equal(t, "https://relay.example/trends/other.example", trends.URI())
	assert.Equal(t, "courier-other.example", trends.PreferredUsername())
}

func TestParseLocalActorURI(t *testing.T) {
	completion, ok := ParseLocalActorURI("relay.example", "https://relay.example/completion")
	assert.True(t, ok)
	assert.True(t, completion.Kind.Completion)

	trends, ok := ParseLocalActorURI("relay.example", "https://relay.example/trends/other.example")
	assert.True(t, ok)
	assert.False(t, trends.Kind.Completion)
	assert.Equal(t, "other.example", trends.Kind.SourceHost)

	_, ok = ParseLocalActorURI("relay.example", "https://unrelated.example/completion")
	assert.False(t, ok)
}

func TestRemoteActor_Host(t *testing.T) {
	r := RemoteActor{ID: "https://other.example/users/alice", Inbox: "https://other.example/inbox"}
	host, ok := r.Host()
	assert.True(t, ok)
	assert.Equal(t, "other.example", host)

	inboxHost, ok := r.InboxHost()
	assert.True(t, ok)
	assert.Equal(t, "other.example", inboxHost)

	bad := RemoteActor{ID: "not a url at all \x7f"}
	_, ok = bad.Host()
	assert.False(t, ok)
}

func TestPost_Origin(t *testing.T) {
	root := Post{URI: "https://origin.example/posts/1"}
	boost := Post{URI: "https://other.example/posts/2", Reblog: &root}
	doubleBoost := Post{URI: "https://third.example/posts/3", Reblog: &boost}

	assert.Equal(t, root, boost.Origin())
	assert.Equal(t, root, doubleBoost.Origin())
	assert.Equal(t, root, root.Origin())
}

func TestPost_IsReply(t *testing.T) {
	assert.False(t, Post{}.IsReply())
	assert.True(t, Post{InReplyToID: "https://origin.example/posts/1"}.IsReply())
}
