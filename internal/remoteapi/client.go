// Package remoteapi abstracts the two upstream post-API dialects ("A-style",
// Mastodon-shaped, and "M-style", Misskey-shaped) behind one capability set:
// detect a host's flavor, fetch trending posts, fetch the global timeline
// since a cursor, and fetch a post's reply descendants.
package remoteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hollowsky/courier-relay/internal/ap"
	"github.com/hollowsky/courier-relay/internal/relay"
)

// requestsPerSecond and burst bound how fast the relay hits any one
// upstream host, so a busy DescendantsLoop worker doesn't hammer a single
// instance while walking its reply trees.
const (
	requestsPerSecond = 2
	burst             = 5
)

// defaultFederationConcurrency bounds how many outbound requests to remote
// instances this client holds in flight at once (across every host), used
// when New is given a concurrency of zero.
const defaultFederationConcurrency = 10

// Client fetches posts from upstream instances, rate-limited per host and
// bounded in total in-flight concurrency across all hosts.
type Client struct {
	HTTP     *http.Client
	limiters sync.Map // host -> *rate.Limiter
	sem      chan struct{}
}

// New builds a Client with the given per-request timeout. concurrency
// bounds the number of requests (across every host) this client holds in
// flight simultaneously, protecting both remote instances and local
// resources during a large fan-out; zero falls back to
// defaultFederationConcurrency.
func New(timeout time.Duration, concurrency int) *Client {
	if concurrency <= 0 {
		concurrency = defaultFederationConcurrency
	}
	return &Client{HTTP: &http.Client{Timeout: timeout}, sem: make(chan struct{}, concurrency)}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	if v, ok := c.limiters.Load(host); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	actual, _ := c.limiters.LoadOrStore(host, lim)
	return actual.(*rate.Limiter)
}

func (c *Client) do(ctx context.Context, host string, req *http.Request) (*http.Response, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, relay.Wrap(relay.ErrHTTPTransport, "federation concurrency wait", ctx.Err())
	}
	if err := c.limiterFor(host).Wait(ctx); err != nil {
		return nil, relay.Wrap(relay.ErrHTTPTransport, "rate limit wait", err)
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, relay.Wrap(relay.ErrHTTPTransport, fmt.Sprintf("request to %s", host), err)
	}
	return res, nil
}

func readBody(res *http.Response) ([]byte, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, relay.Wrap(relay.ErrHTTPTransport, "read response body", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, relay.RemoteStatusErr(res.StatusCode, string(body))
	}
	return body, nil
}

// DetectFlavor probes host's two candidate endpoints and reports which
// dialect(s) it speaks. A flavor, once returned successfully, must never be
// re-derived differently by a later probe — flavor stability is the
// Store's responsibility (Instance.api_flavor is only ever written once).
func (c *Client) DetectFlavor(ctx context.Context, host string) (relay.Flavor, error) {
	type probeResult struct {
		ok  bool
		err error
	}
	aCh := make(chan probeResult, 1)
	mCh := make(chan probeResult, 1)

	go func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+host+"/api/v1/instance", nil)
		if err != nil {
			aCh <- probeResult{err: err}
			return
		}
		res, err := c.do(ctx, host, req)
		if err != nil {
			aCh <- probeResult{err: err}
			return
		}
		defer res.Body.Close()
		aCh <- probeResult{ok: res.StatusCode == http.StatusOK}
	}()

	go func() {
		body, _ := json.Marshal(map[string]interface{}{"detail": false})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+host+"/api/meta", bytes.NewReader(body))
		if err != nil {
			mCh <- probeResult{err: err}
			return
		}
		req.Header.Set("Content-Type", "application/json")
		res, err := c.do(ctx, host, req)
		if err != nil {
			mCh <- probeResult{err: err}
			return
		}
		defer res.Body.Close()
		mCh <- probeResult{ok: res.StatusCode == http.StatusOK}
	}()

	a, m := <-aCh, <-mCh
	aOK := a.err == nil && a.ok
	mOK := m.err == nil && m.ok

	switch {
	case aOK && mOK:
		return relay.FlavorHybrid, nil
	case aOK:
		return relay.FlavorA, nil
	case mOK:
		return relay.FlavorM, nil
	default:
		return "", relay.RemoteShapeErr(fmt.Sprintf("failed to determine api flavor of %s", host))
	}
}

// FlavorStore is the subset of store.Store the client needs to cache a
// host's flavor across calls.
type FlavorStore interface {
	GetInstanceFlavor(host string) (relay.Flavor, bool, error)
	UpsertInstance(host string, flavor relay.Flavor) error
}

// ResolveFlavor returns host's flavor, probing and persisting it on first
// contact.
func (c *Client) ResolveFlavor(ctx context.Context, st FlavorStore, host string) (relay.Flavor, error) {
	if flavor, ok, err := st.GetInstanceFlavor(host); err != nil {
		return "", err
	} else if ok {
		return flavor, nil
	}
	flavor, err := c.DetectFlavor(ctx, host)
	if err != nil {
		return "", err
	}
	if err := st.UpsertInstance(host, flavor); err != nil {
		return "", err
	}
	return flavor, nil
}

func usesAStyle(flavor relay.Flavor) bool {
	return flavor == relay.FlavorA || flavor == relay.FlavorHybrid
}

// GetTrending fetches the top trending posts, reduced to their origin (a
// boosted post is relayed as the thing it boosted, never the boost
// wrapper).
func (c *Client) GetTrending(ctx context.Context, host string, flavor relay.Flavor) ([]relay.Post, error) {
	var posts []relay.Post
	var err error
	if usesAStyle(flavor) {
		posts, err = c.mastodonTrending(ctx, host)
	} else {
		posts, err = c.misskeyTrending(ctx, host)
	}
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i] = posts[i].Origin()
	}
	return posts, nil
}

func (c *Client) mastodonTrending(ctx context.Context, host string) ([]relay.Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+host+"/api/v1/trends/statuses?limit=10", nil)
	if err != nil {
		return nil, relay.Wrap(relay.ErrHTTPBuild, "build trending request", err)
	}
	res, err := c.do(ctx, host, req)
	if err != nil {
		return nil, err
	}
	body, err := readBody(res)
	if err != nil {
		return nil, err
	}
	return ap.DecodePosts(body)
}

func (c *Client) misskeyTrending(ctx context.Context, host string) ([]relay.Post, error) {
	body, _ := json.Marshal(map[string]interface{}{"limit": 10})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+host+"/api/notes/featured", bytes.NewReader(body))
	if err != nil {
		return nil, relay.Wrap(relay.ErrHTTPBuild, "build trending request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.do(ctx, host, req)
	if err != nil {
		return nil, err
	}
	resBody, err := readBody(res)
	if err != nil {
		return nil, err
	}
	return ap.DecodeMisskeyPosts(resBody, host)
}

// GetGlobalTimeline fetches posts newer than sinceID (or everything, if
// sinceID is empty), sorted ascending by creation time.
func (c *Client) GetGlobalTimeline(ctx context.Context, host string, flavor relay.Flavor, sinceID string) ([]relay.Post, error) {
	var posts []relay.Post
	var err error
	if usesAStyle(flavor) {
		posts, err = c.mastodonTimeline(ctx, host, sinceID)
	} else {
		posts, err = c.misskeyTimeline(ctx, host, sinceID)
	}
	if err != nil {
		return nil, err
	}
	sortByCreatedAt(posts)
	return posts, nil
}

func (c *Client) mastodonTimeline(ctx context.Context, host, sinceID string) ([]relay.Post, error) {
	url := "https://" + host + "/api/v1/timelines/public?limit=40"
	if sinceID != "" {
		url += "&since_id=" + sinceID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, relay.Wrap(relay.ErrHTTPBuild, "build timeline request", err)
	}
	res, err := c.do(ctx, host, req)
	if err != nil {
		return nil, err
	}
	body, err := readBody(res)
	if err != nil {
		return nil, err
	}
	return ap.DecodePosts(body)
}

func (c *Client) misskeyTimeline(ctx context.Context, host, sinceID string) ([]relay.Post, error) {
	payload := map[string]interface{}{"limit": 100}
	if sinceID != "" {
		payload["sinceId"] = sinceID
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+host+"/api/notes/global-timeline", bytes.NewReader(body))
	if err != nil {
		return nil, relay.Wrap(relay.ErrHTTPBuild, "build timeline request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.do(ctx, host, req)
	if err != nil {
		return nil, err
	}
	resBody, err := readBody(res)
	if err != nil {
		return nil, err
	}
	return ap.DecodeMisskeyPosts(resBody, host)
}

func sortByCreatedAt(posts []relay.Post) {
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt < posts[j].CreatedAt })
}
