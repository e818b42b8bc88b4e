package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hollowsky/courier-relay/internal/relay"
	"github.com/hollowsky/courier-relay/internal/remoteapi"
)

// defaultDescendantsWorkerCapacity bounds the per-host queue between the
// loop's tick and the worker that walks that host's posts serially, when
// WorkerCapacity is left at zero.
const defaultDescendantsWorkerCapacity = 16

// DescendantsStore is the subset of store.Store the loop needs: every
// monitored root, the place newly-found descendants are recorded, and the
// flavor cache RemoteAPI reads through it.
type DescendantsStore interface {
	remoteapi.FlavorStore
	ListRoots() ([]relay.Post, error)
	InsertDescendants(ancestorURI string, posts []relay.Post) error
}

// DescendantsAPI is the subset of remoteapi.Client the loop needs.
type DescendantsAPI interface {
	ResolveFlavor(ctx context.Context, st remoteapi.FlavorStore, host string) (relay.Flavor, error)
	GetDescendants(ctx context.Context, post relay.Post, flavor relay.Flavor) ([]relay.Post, error)
}

// DescendantsLoop walks every monitored root's reply tree and records
// newly-found descendants, one bounded worker per source host so each
// host's posts are walked serially. A tick blocks while a host's queue is
// full, so a slow host can delay dispatch to the hosts after it.
type DescendantsLoop struct {
	PollInterval   time.Duration
	WorkerCapacity int
	Store          DescendantsStore
	API            DescendantsAPI

	mu      sync.Mutex
	workers map[string]chan relay.Post
}

// Start runs the loop until ctx is done.
func (l *DescendantsLoop) Start(ctx context.Context) {
	if l.workers == nil {
		l.workers = make(map[string]chan relay.Post)
	}
	runLoop(ctx, l.PollInterval, l.tick)
}

func (l *DescendantsLoop) tick(ctx context.Context) {
	roots, err := l.Store.ListRoots()
	if err != nil {
		slog.Error("descendants: list roots", "error", err)
		return
	}
	for _, root := range roots {
		host, ok := root.Host()
		if !ok {
			slog.Error("descendants: host unknown", "uri", root.URI)
			continue
		}
		w := l.workerFor(ctx, host)
		select {
		case w <- root:
		case <-ctx.Done():
			return
		}
	}
}

func (l *DescendantsLoop) workerFor(ctx context.Context, host string) chan relay.Post {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.workers[host]; ok {
		return w
	}
	capacity := l.WorkerCapacity
	if capacity <= 0 {
		capacity = defaultDescendantsWorkerCapacity
	}
	w := make(chan relay.Post, capacity)
	l.workers[host] = w
	go l.runWorker(ctx, host, w)
	return w
}

func (l *DescendantsLoop) runWorker(ctx context.Context, host string, posts chan relay.Post) {
	flavor, err := l.API.ResolveFlavor(ctx, l.Store, host)
	if err != nil {
		slog.Error("descendants: resolve flavor", "host", host, "error", err)
		// Drain so senders don't block forever on a host we can't
		// service; every queued post is logged and dropped.
		for range posts {
			slog.Error("descendants: worker unavailable", "host", host, "error", err)
		}
		return
	}

	for post := range posts {
		l.updatePost(ctx, post, flavor)
	}
}

func (l *DescendantsLoop) updatePost(ctx context.Context, post relay.Post, flavor relay.Flavor) {
	descendants, err := l.API.GetDescendants(ctx, post, flavor)
	if err != nil {
		slog.Error("descendants: update", "uri", post.URI, "error", err)
		return
	}
	if err := l.Store.InsertDescendants(post.URI, descendants); err != nil {
		slog.Error("descendants: insert", "uri", post.URI, "error", err)
	}
}
