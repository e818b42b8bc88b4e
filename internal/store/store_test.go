package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowsky/courier-relay/internal/relay"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { st.Close() })
	return st
}

func TestFlavorStability(t *testing.T) {
	st := newTestStore(t)

	_, ok, err := st.GetInstanceFlavor("a.example")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.UpsertInstance("a.example", relay.FlavorA))
	// A later probe must never overwrite an already-recorded flavor.
	require.NoError(t, st.UpsertInstance("a.example", relay.FlavorHybrid))

	flavor, ok, err := st.GetInstanceFlavor("a.example")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, relay.FlavorA, flavor)
}

func TestFollowLifecycle(t *testing.T) {
	st := newTestStore(t)
	localURI := "https://relay.example/completion"
	remote := relay.RemoteActor{ID: "https://other.example/users/alice", Inbox: "https://other.example/inbox/alice"}

	require.NoError(t, st.AddFollow(remote, localURI))

	followers, err := st.ListFollowers(localURI)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, remote, followers[0])

	actors, err := st.ListActors("relay.example")
	require.NoError(t, err)
	require.Len(t, actors, 1)
	assert.True(t, actors[0].Kind.Completion)

	// A later Follow from the same actor updates its inbox (most recent wins).
	remote.Inbox = "https://other.example/inbox/alice-new"
	require.NoError(t, st.AddFollow(remote, localURI))
	followers, err = st.ListFollowers(localURI)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "https://other.example/inbox/alice-new", followers[0].Inbox)

	require.NoError(t, st.DelFollow(remote.ID, localURI))
	followers, err = st.ListFollowers(localURI)
	require.NoError(t, err)
	assert.Empty(t, followers)
}

func TestInsertDescendants_SequenceMonotonic(t *testing.T) {
	st := newTestStore(t)
	remote := "https://watcher.example/users/bob"
	root := relay.Post{URI: "https://origin.example/posts/1", FetchTime: 1}

	require.NoError(t, st.AddFollow(relay.RemoteActor{ID: remote, Inbox: "https://watcher.example/inbox/bob"}, "https://relay.example/completion"))
	require.NoError(t, st.AddMonitorLinks(remote, []relay.Post{root}))

	require.NoError(t, st.InsertDescendants(root.URI, []relay.Post{
		{URI: "https://origin.example/posts/2", FetchTime: 2},
		{URI: "https://origin.example/posts/3", FetchTime: 3},
	}))

	first, err := st.DescendantsAfter(root.URI, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Less(t, first[0].Sequence, first[1].Sequence)

	require.NoError(t, st.InsertDescendants(root.URI, []relay.Post{
		{URI: "https://origin.example/posts/4", FetchTime: 4},
	}))

	// No-skip consumer: reading again after advancing past the first batch
	// returns exactly the unconsumed tail, never re-delivering or skipping.
	require.NoError(t, st.AdvanceMonitor(remote, root.URI, first[len(first)-1].Sequence))
	tail, err := st.DescendantsAfter(root.URI, first[len(first)-1].Sequence)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "https://origin.example/posts/4", tail[0].Post.URI)
	assert.Greater(t, tail[0].Sequence, first[len(first)-1].Sequence)
}

func TestInsertDescendants_DuplicateURIIgnored(t *testing.T) {
	st := newTestStore(t)
	root := relay.Post{URI: "https://origin.example/posts/1", FetchTime: 1}
	require.NoError(t, st.AddFollow(relay.RemoteActor{ID: "https://watcher.example/users/bob", Inbox: "https://watcher.example/inbox/bob"}, "https://relay.example/completion"))
	require.NoError(t, st.AddMonitorLinks("https://watcher.example/users/bob", []relay.Post{root}))

	dupe := relay.Post{URI: "https://origin.example/posts/2", FetchTime: 2}
	require.NoError(t, st.InsertDescendants(root.URI, []relay.Post{dupe}))
	require.NoError(t, st.InsertDescendants(root.URI, []relay.Post{dupe}))

	rows, err := st.DescendantsAfter(root.URI, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMonitorLinksOf_AdvanceMonitor(t *testing.T) {
	st := newTestStore(t)
	remote := "https://watcher.example/users/carol"
	root := relay.Post{URI: "https://origin.example/posts/1", FetchTime: 1}
	require.NoError(t, st.AddFollow(relay.RemoteActor{ID: remote, Inbox: "https://watcher.example/inbox/carol"}, "https://relay.example/completion"))
	require.NoError(t, st.AddMonitorLinks(remote, []relay.Post{root}))

	links, err := st.MonitorLinksOf(remote)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, int64(0), links[0].UpdateSequence)

	require.NoError(t, st.AdvanceMonitor(remote, root.URI, 6))
	links, err = st.MonitorLinksOf(remote)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, int64(6), links[0].UpdateSequence)
}

func TestCursor_GetSet(t *testing.T) {
	st := newTestStore(t)
	remote := "https://watcher.example/users/dora"
	require.NoError(t, st.AddFollow(relay.RemoteActor{ID: remote, Inbox: "https://watcher.example/inbox/dora"}, "https://relay.example/completion"))

	_, ok, err := st.GetCursor(remote)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SetCursor(remote, "1001"))
	latest, ok, err := st.GetCursor(remote)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1001", latest)

	require.NoError(t, st.SetCursor(remote, "1050"))
	latest, ok, err = st.GetCursor(remote)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1050", latest)
}
