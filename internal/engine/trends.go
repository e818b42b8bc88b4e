package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/hollowsky/courier-relay/internal/relay"
	"github.com/hollowsky/courier-relay/internal/remoteapi"
	"github.com/hollowsky/courier-relay/internal/sender"
)

// TrendsStore is the subset of store.Store the loop needs: the follow
// graph and the flavor cache RemoteAPI reads through it.
type TrendsStore interface {
	remoteapi.FlavorStore
	ListActors(serviceHost string) ([]relay.LocalActor, error)
	ListFollowers(localActorURI string) ([]relay.RemoteActor, error)
}

// TrendsAPI is the subset of remoteapi.Client the loop needs.
type TrendsAPI interface {
	ResolveFlavor(ctx context.Context, st remoteapi.FlavorStore, host string) (relay.Flavor, error)
	GetTrending(ctx context.Context, host string, flavor relay.Flavor) ([]relay.Post, error)
}

// Announcer is the subset of sender.Sender every loop that produces
// announce jobs submits through.
type Announcer interface {
	Submit(ctx context.Context, j sender.Job) error
}

// TrendsLoop relays each followed instance's trending posts to whoever
// follows that instance's trends persona.
type TrendsLoop struct {
	ServiceHost  string
	PollInterval time.Duration
	Store        TrendsStore
	API          TrendsAPI
	Sender       Announcer
}

// Start runs the loop until ctx is done.
func (l *TrendsLoop) Start(ctx context.Context) {
	runLoop(ctx, l.PollInterval, l.tick)
}

func (l *TrendsLoop) tick(ctx context.Context) {
	actors, err := l.Store.ListActors(l.ServiceHost)
	if err != nil {
		slog.Error("trends: list actors", "error", err)
		return
	}
	for _, actor := range actors {
		if actor.Kind.Completion {
			continue
		}
		l.updateOne(ctx, actor)
	}
}

func (l *TrendsLoop) updateOne(ctx context.Context, actor relay.LocalActor) {
	sourceHost := actor.Kind.SourceHost

	followers, err := l.Store.ListFollowers(actor.URI())
	if err != nil {
		slog.Error("trends: list followers", "host", sourceHost, "error", err)
		return
	}
	if len(followers) == 0 {
		return
	}

	flavor, err := l.API.ResolveFlavor(ctx, l.Store, sourceHost)
	if err != nil {
		slog.Error("trends: resolve flavor", "host", sourceHost, "error", err)
		return
	}

	posts, err := l.API.GetTrending(ctx, sourceHost, flavor)
	if err != nil {
		slog.Error("trends: fetch trending", "host", sourceHost, "error", err)
		return
	}

	for _, post := range posts {
		for _, follower := range followers {
			if err := l.Sender.Submit(ctx, sender.Job{Actor: actor, Follower: follower, Post: post}); err != nil {
				slog.Error("trends: submit", "inbox", follower.Inbox, "error", err)
			}
		}
	}
}
