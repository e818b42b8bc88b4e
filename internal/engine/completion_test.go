package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowsky/courier-relay/internal/relay"
	"github.com/hollowsky/courier-relay/internal/remoteapi"
	"github.com/hollowsky/courier-relay/internal/sender"
	"github.com/hollowsky/courier-relay/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { st.Close() })
	return st
}

// fakeAnnouncer records every job it's handed instead of delivering it, so
// tests can assert on what the loops decided to relay without a live HTTP
// server or signer.
type fakeAnnouncer struct {
	jobs   []sender.Job
	refuse bool
}

func (f *fakeAnnouncer) Submit(_ context.Context, j sender.Job) error {
	if f.refuse {
		return context.Canceled
	}
	f.jobs = append(f.jobs, j)
	return nil
}

func TestCompletionLoop_RelaysNewDescendantsAndAdvancesCursor(t *testing.T) {
	st := newTestStore(t)
	completionActor := relay.NewCompletionActor("relay.example")
	follower := relay.RemoteActor{ID: "https://watcher.example/users/carol", Inbox: "https://watcher.example/inbox/carol"}
	root := relay.Post{URI: "https://origin.example/posts/1", FetchTime: 1}

	require.NoError(t, st.AddFollow(follower, completionActor.URI()))
	require.NoError(t, st.AddMonitorLinks(follower.ID, []relay.Post{root}))

	require.NoError(t, st.InsertDescendants(root.URI, []relay.Post{
		{URI: "https://origin.example/posts/5", FetchTime: 5},
		{URI: "https://origin.example/posts/6", FetchTime: 6},
	}))

	announcer := &fakeAnnouncer{}
	loop := &CompletionLoop{CompletionActor: completionActor, Store: st, Sender: announcer}
	loop.tick(context.Background())

	require.Len(t, announcer.jobs, 2)
	for _, j := range announcer.jobs {
		assert.Equal(t, follower, j.Follower)
		assert.True(t, j.Actor.Kind.Completion)
	}

	links, err := st.MonitorLinksOf(follower.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Greater(t, links[0].UpdateSequence, int64(0))

	// A second tick with nothing new queues no further jobs: the cursor
	// already covers every descendant inserted so far.
	loop.tick(context.Background())
	assert.Len(t, announcer.jobs, 2)
}

func TestCompletionLoop_RefusedSubmitDoesNotAdvance(t *testing.T) {
	st := newTestStore(t)
	completionActor := relay.NewCompletionActor("relay.example")
	follower := relay.RemoteActor{ID: "https://watcher.example/users/dana", Inbox: "https://watcher.example/inbox/dana"}
	root := relay.Post{URI: "https://origin.example/posts/1", FetchTime: 1}

	require.NoError(t, st.AddFollow(follower, completionActor.URI()))
	require.NoError(t, st.AddMonitorLinks(follower.ID, []relay.Post{root}))
	require.NoError(t, st.InsertDescendants(root.URI, []relay.Post{
		{URI: "https://origin.example/posts/2", FetchTime: 2},
	}))

	announcer := &fakeAnnouncer{refuse: true}
	loop := &CompletionLoop{CompletionActor: completionActor, Store: st, Sender: announcer}
	loop.tick(context.Background())

	assert.Empty(t, announcer.jobs)

	links, err := st.MonitorLinksOf(follower.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, int64(0), links[0].UpdateSequence)
}

func TestTrendsLoop_FansOutToEveryFollower(t *testing.T) {
	st := newTestStore(t)
	actor := relay.NewTrendsActor("relay.example", "m.example")
	alice := relay.RemoteActor{ID: "https://a.example/users/alice", Inbox: "https://a.example/inbox/alice"}
	bob := relay.RemoteActor{ID: "https://b.example/users/bob", Inbox: "https://b.example/inbox/bob"}
	require.NoError(t, st.AddFollow(alice, actor.URI()))
	require.NoError(t, st.AddFollow(bob, actor.URI()))

	announcer := &fakeAnnouncer{}
	loop := &TrendsLoop{ServiceHost: "relay.example", Store: st, API: fakeTrendsAPI{posts: []relay.Post{
		{URI: "https://m.example/posts/1"},
		{URI: "https://m.example/posts/2"},
		{URI: "https://m.example/posts/3"},
	}}, Sender: announcer}
	loop.tick(context.Background())

	assert.Len(t, announcer.jobs, 6)
}

type fakeTrendsAPI struct {
	posts []relay.Post
}

func (f fakeTrendsAPI) ResolveFlavor(_ context.Context, st remoteapi.FlavorStore, host string) (relay.Flavor, error) {
	return relay.FlavorA, st.UpsertInstance(host, relay.FlavorA)
}

func (f fakeTrendsAPI) GetTrending(_ context.Context, _ string, _ relay.Flavor) ([]relay.Post, error) {
	return f.posts, nil
}
