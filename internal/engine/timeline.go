package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/hollowsky/courier-relay/internal/relay"
	"github.com/hollowsky/courier-relay/internal/remoteapi"
)

// TimelineStore is the subset of store.Store the loop needs: the
// completion follow graph, each follower's timeline cursor, and the
// flavor cache RemoteAPI reads through it.
type TimelineStore interface {
	remoteapi.FlavorStore
	ListFollowers(localActorURI string) ([]relay.RemoteActor, error)
	GetCursor(remoteActorID string) (string, bool, error)
	SetCursor(remoteActorID, latestID string) error
	AddMonitorLinks(remoteActorID string, posts []relay.Post) error
}

// TimelineAPI is the subset of remoteapi.Client the loop needs.
type TimelineAPI interface {
	ResolveFlavor(ctx context.Context, st remoteapi.FlavorStore, host string) (relay.Flavor, error)
	GetGlobalTimeline(ctx context.Context, host string, flavor relay.Flavor, sinceID string) ([]relay.Post, error)
}

// TimelineLoop watches each completion-persona follower's own instance
// timeline for new root posts and starts monitoring them for replies. A
// boost is reduced to the post it boosts; replies are excluded.
type TimelineLoop struct {
	CompletionActor relay.LocalActor
	PollInterval    time.Duration
	Store           TimelineStore
	API             TimelineAPI
}

// Start runs the loop until ctx is done.
func (l *TimelineLoop) Start(ctx context.Context) {
	runLoop(ctx, l.PollInterval, l.tick)
}

func (l *TimelineLoop) tick(ctx context.Context) {
	followers, err := l.Store.ListFollowers(l.CompletionActor.URI())
	if err != nil {
		slog.Error("timeline: list followers", "error", err)
		return
	}
	for _, follower := range followers {
		l.updateOne(ctx, follower)
	}
}

func (l *TimelineLoop) updateOne(ctx context.Context, follower relay.RemoteActor) {
	host, ok := follower.Host()
	if !ok {
		slog.Error("timeline: invalid follower id", "id", follower.ID)
		return
	}

	flavor, err := l.API.ResolveFlavor(ctx, l.Store, host)
	if err != nil {
		slog.Error("timeline: resolve flavor", "host", host, "error", err)
		return
	}

	sinceID, _, err := l.Store.GetCursor(follower.ID)
	if err != nil {
		slog.Error("timeline: get cursor", "follower", follower.ID, "error", err)
		return
	}

	posts, err := l.API.GetGlobalTimeline(ctx, host, flavor, sinceID)
	if err != nil {
		slog.Error("timeline: fetch timeline", "host", host, "error", err)
		return
	}
	if len(posts) == 0 {
		return
	}

	newLatestID := posts[len(posts)-1].TimelineID

	var roots []relay.Post
	for _, p := range posts {
		origin := p.Origin()
		if !origin.IsReply() {
			roots = append(roots, origin)
		}
	}
	if len(roots) > 0 {
		if err := l.Store.AddMonitorLinks(follower.ID, roots); err != nil {
			slog.Error("timeline: add monitor links", "follower", follower.ID, "error", err)
			return
		}
	}

	if err := l.Store.SetCursor(follower.ID, newLatestID); err != nil {
		slog.Error("timeline: set cursor", "follower", follower.ID, "error", err)
	}
}
