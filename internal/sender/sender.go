// Package sender delivers Announce activities to followers' inboxes. It
// fans in from the periodic loops through one shared channel, then fans out
// to one bounded worker goroutine per destination inbox host, so a slow or
// unreachable host never backs up delivery to every other follower.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/hollowsky/courier-relay/internal/ap"
	"github.com/hollowsky/courier-relay/internal/relay"
	"github.com/hollowsky/courier-relay/internal/signer"
)

// defaultFanInCapacity is the shared queue depth between the loops
// (TrendsLoop, CompletionLoop) and the central dispatcher, used when
// FanInCapacity is left at zero.
const defaultFanInCapacity = 16

// defaultWorkerCapacity is the per-inbox queue depth; a worker whose queue
// is full drops new jobs rather than blocking the dispatcher. Used when
// WorkerCapacity is left at zero.
const defaultWorkerCapacity = 1024

// Job is one (actor, follower, post) delivery request.
type Job struct {
	Actor    relay.LocalActor
	Follower relay.RemoteActor
	Post     relay.Post
}

// Sender owns the fan-in channel and the per-inbox-host worker map. All
// deliveries are signed with one relay-wide key, keyed per-job by the
// sending actor's own id.
type Sender struct {
	Hostname       string
	Signer         *signer.Signer
	HTTP           *http.Client
	OnDeliver      func()
	WorkerCapacity int

	fanIn   chan Job
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	workers map[string]chan deliverJob
}

type deliverJob struct {
	keyID     string
	inboxURL  string
	body      []byte
	requestID string
}

// New builds a Sender. onDeliver, if non-nil, is called after each
// successful delivery (used to ping the systemd watchdog). fanInCapacity
// and workerCapacity fall back to defaultFanInCapacity/defaultWorkerCapacity
// when zero.
func New(hostname string, sg *signer.Signer, httpClient *http.Client, onDeliver func(), fanInCapacity, workerCapacity int) *Sender {
	if fanInCapacity <= 0 {
		fanInCapacity = defaultFanInCapacity
	}
	if workerCapacity <= 0 {
		workerCapacity = defaultWorkerCapacity
	}
	return &Sender{
		Hostname:       hostname,
		Signer:         sg,
		HTTP:           httpClient,
		OnDeliver:      onDeliver,
		WorkerCapacity: workerCapacity,
		fanIn:          make(chan Job, fanInCapacity),
		closed:         make(chan struct{}),
		workers:        make(map[string]chan deliverJob),
	}
}

// Submit enqueues a delivery job onto the shared fan-in channel, blocking
// until there's room or ctx is done or the Sender has been closed.
func (s *Sender) Submit(ctx context.Context, j Job) error {
	select {
	case s.fanIn <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return relay.Wrap(relay.ErrStore, "sender closed", nil)
	}
}

// Start runs the central dispatcher until ctx is done. Must be called
// exactly once.
func (s *Sender) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.once.Do(func() { close(s.closed) })
			return
		case j := <-s.fanIn:
			s.dispatch(j)
		}
	}
}

func (s *Sender) dispatch(j Job) {
	post := j.Post.Origin()

	inboxHost, ok := j.Follower.InboxHost()
	if !ok {
		slog.Warn("sender: invalid inbox url", "inbox", j.Follower.Inbox)
		return
	}
	postHost, ok := post.Host()
	if !ok {
		slog.Warn("sender: invalid post uri", "uri", post.URI)
		return
	}
	// Never relay a post back to the instance it originated from.
	if inboxHost == postHost {
		return
	}

	activity := ap.BuildAnnounce(s.Hostname, j.Actor, post.URI)
	body, err := json.Marshal(activity)
	if err != nil {
		slog.Error("sender: marshal announce", "error", err)
		return
	}

	w := s.workerFor(inboxHost)
	job := deliverJob{
		keyID:     j.Actor.KeyID(),
		inboxURL:  j.Follower.Inbox,
		body:      body,
		requestID: uuid.NewString(),
	}
	select {
	case w <- job:
	default:
		slog.Warn("sender: worker queue full, dropping", "inbox", j.Follower.Inbox)
	}
}

func (s *Sender) workerFor(host string) chan deliverJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[host]; ok {
		return w
	}
	w := make(chan deliverJob, s.WorkerCapacity)
	s.workers[host] = w
	go s.runWorker(w)
	return w
}

func (s *Sender) runWorker(jobs chan deliverJob) {
	for j := range jobs {
		s.deliver(j)
	}
	panic("sender: worker channel closed unexpectedly")
}

func (s *Sender) deliver(j deliverJob) {
	req, err := http.NewRequest(http.MethodPost, j.inboxURL, bytes.NewReader(j.body))
	if err != nil {
		slog.Error("sender: build request", "inbox", j.inboxURL, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("User-Agent", "courier-relay/1.0")
	// Not part of HTTP Signatures' covered headers: a correlation id for
	// log lines on both sides of a delivery, nothing more.
	req.Header.Set("X-Request-Id", j.requestID)

	if err := s.Signer.Sign(req, j.keyID, j.body); err != nil {
		slog.Error("sender: sign request", "inbox", j.inboxURL, "request_id", j.requestID, "error", err)
		return
	}

	res, err := s.HTTP.Do(req)
	if err != nil {
		slog.Error("sender: deliver", "inbox", j.inboxURL, "request_id", j.requestID, "error", err)
		return
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		slog.Error("sender: non-2xx response", "inbox", j.inboxURL, "request_id", j.requestID, "status", res.StatusCode)
		return
	}

	slog.Debug("sender: delivered", "inbox", j.inboxURL, "request_id", j.requestID)
	if s.OnDeliver != nil {
		s.OnDeliver()
	}
}
