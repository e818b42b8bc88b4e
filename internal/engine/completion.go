package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/hollowsky/courier-relay/internal/relay"
	"github.com/hollowsky/courier-relay/internal/sender"
	"github.com/hollowsky/courier-relay/internal/store"
)

// CompletionStore is the subset of store.Store the loop needs: the
// completion follow graph, each follower's monitor links, and the
// descendants accumulated since each link's cursor.
type CompletionStore interface {
	ListFollowers(localActorURI string) ([]relay.RemoteActor, error)
	MonitorLinksOf(remoteActorID string) ([]store.MonitorLink, error)
	DescendantsAfter(ancestorURI string, sequence int64) ([]store.DescendantRow, error)
	AdvanceMonitor(remoteActorID, rootURI string, sequence int64) error
}

// CompletionLoop relays newly-discovered descendants of each monitored
// root to the follower that asked to be watched on it.
type CompletionLoop struct {
	CompletionActor relay.LocalActor
	PollInterval    time.Duration
	Store           CompletionStore
	Sender          Announcer
}

// Start runs the loop until ctx is done.
func (l *CompletionLoop) Start(ctx context.Context) {
	runLoop(ctx, l.PollInterval, l.tick)
}

func (l *CompletionLoop) tick(ctx context.Context) {
	followers, err := l.Store.ListFollowers(l.CompletionActor.URI())
	if err != nil {
		slog.Error("completion: list followers", "error", err)
		return
	}
	for _, follower := range followers {
		l.relayNewPosts(ctx, follower)
	}
}

func (l *CompletionLoop) relayNewPosts(ctx context.Context, follower relay.RemoteActor) {
	links, err := l.Store.MonitorLinksOf(follower.ID)
	if err != nil {
		slog.Error("completion: monitor links", "follower", follower.ID, "error", err)
		return
	}

	for _, link := range links {
		newPosts, err := l.Store.DescendantsAfter(link.Root.URI, link.UpdateSequence)
		if err != nil {
			slog.Error("completion: descendants after", "root", link.Root.URI, "error", err)
			continue
		}

		newSequence := link.UpdateSequence
		refused := false
		for _, row := range newPosts {
			job := sender.Job{Actor: l.CompletionActor, Follower: follower, Post: row.Post}
			if err := l.Sender.Submit(ctx, job); err != nil {
				slog.Error("completion: submit", "inbox", follower.Inbox, "error", err)
				refused = true
				break
			}
			if row.Sequence > newSequence {
				newSequence = row.Sequence
			}
		}
		// A refused submission aborts this link without advancing, so the
		// unsent descendants are retried from the same cursor next tick.
		if refused {
			continue
		}

		if err := l.Store.AdvanceMonitor(follower.ID, link.Root.URI, newSequence); err != nil {
			slog.Error("completion: advance monitor", "root", link.Root.URI, "error", err)
		}
	}
}
