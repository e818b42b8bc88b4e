package remoteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/hollowsky/courier-relay/internal/ap"
	"github.com/hollowsky/courier-relay/internal/relay"
)

// maxReplyDepth and maxReplyNodes bound the M-style breadth-first reply
// walk: the upstream recursion this replaces has no such cap and can spin
// forever on a pathological (or hostile) reply tree.
const (
	maxReplyDepth = 8
	maxReplyNodes = 500
)

// GetDescendants fetches a post's reply tree, excluding the post itself.
// On M-style hosts the walk stops at maxReplyDepth and maxReplyNodes.
func (c *Client) GetDescendants(ctx context.Context, post relay.Post, flavor relay.Flavor) ([]relay.Post, error) {
	if usesAStyle(flavor) {
		return c.mastodonDescendants(ctx, post)
	}
	return c.misskeyDescendants(ctx, post)
}

func (c *Client) mastodonDescendants(ctx context.Context, post relay.Post) ([]relay.Post, error) {
	host, ok := post.Host()
	if !ok {
		return nil, relay.Wrap(relay.ErrInvalidURI, fmt.Sprintf("no host in %s", post.URI), nil)
	}
	id := lastPathSegment(post.URI)
	if id == "" {
		return nil, relay.Wrap(relay.ErrInvalidURI, fmt.Sprintf("no id in %s", post.URI), nil)
	}
	url := fmt.Sprintf("https://%s/api/v1/statuses/%s/context", host, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, relay.Wrap(relay.ErrHTTPBuild, "build context request", err)
	}
	res, err := c.do(ctx, host, req)
	if err != nil {
		return nil, err
	}
	body, err := readBody(res)
	if err != nil {
		return nil, err
	}
	var context struct {
		Descendants []map[string]interface{} `json:"descendants"`
	}
	if err := json.Unmarshal(body, &context); err != nil {
		return nil, relay.Wrap(relay.ErrJSONShape, "decode context", err)
	}
	raw, err := json.Marshal(context.Descendants)
	if err != nil {
		return nil, relay.Wrap(relay.ErrJSONShape, "re-encode descendants", err)
	}
	return ap.DecodePosts(raw)
}

// misskeyDescendants walks the reply tree breadth-first, one /api/notes/replies
// call per node, capped by maxReplyDepth and maxReplyNodes and deduplicated
// by uri so a cyclic or republished thread can't be visited twice.
func (c *Client) misskeyDescendants(ctx context.Context, post relay.Post) ([]relay.Post, error) {
	host, ok := post.Host()
	if !ok {
		return nil, relay.Wrap(relay.ErrInvalidURI, fmt.Sprintf("no host in %s", post.URI), nil)
	}
	rootID := lastPathSegment(post.URI)
	if rootID == "" {
		return nil, relay.Wrap(relay.ErrInvalidURI, fmt.Sprintf("no id in %s", post.URI), nil)
	}

	type queued struct {
		id    string
		depth int
	}
	queue := []queued{{id: rootID, depth: 0}}
	seen := map[string]bool{}
	var out []relay.Post

	for len(queue) > 0 && len(out) < maxReplyNodes {
		node := queue[0]
		queue = queue[1:]
		if node.depth >= maxReplyDepth {
			continue
		}

		replies, err := c.misskeyReplies(ctx, host, node.id)
		if err != nil {
			return nil, err
		}
		for _, reply := range replies {
			if seen[reply.URI] {
				continue
			}
			seen[reply.URI] = true
			out = append(out, reply)
			if len(out) >= maxReplyNodes {
				break
			}
			if reply.TimelineID != "" {
				queue = append(queue, queued{id: reply.TimelineID, depth: node.depth + 1})
			}
		}
	}
	return out, nil
}

func (c *Client) misskeyReplies(ctx context.Context, host, noteID string) ([]relay.Post, error) {
	body, _ := json.Marshal(map[string]interface{}{"noteId": noteID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+host+"/api/notes/replies", bytes.NewReader(body))
	if err != nil {
		return nil, relay.Wrap(relay.ErrHTTPBuild, "build replies request", err)
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

func lastPathSegment(rawURI string) string {
	u, err := url.Parse(rawURI)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return path.Base(u.Path)
}
