package ap

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hollowsky/courier-relay/internal/relay"
)

// DecodePosts unmarshals an A-style (Mastodon-shaped) JSON array of posts
// into generic maps and converts each with postFromMap, which reads the
// A-style field names (in_reply_to_id, reblog, created_at) as they are.
func DecodePosts(body []byte) ([]relay.Post, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, relay.Wrap(relay.ErrJSONShape, "decode post array", err)
	}
	now := time.Now().Unix()
	posts := make([]relay.Post, 0, len(raw))
	for _, m := range raw {
		posts = append(posts, postFromMap(m, now))
	}
	return posts, nil
}

// DecodeMisskeyPosts unmarshals an M-style (Misskey-shaped) JSON array,
// first supplementing each post (and its nested renote/reply, recursively)
// that has no "uri" field with one synthesized from its id and the host it
// was fetched from. A post that already carries a "uri" keeps it.
func DecodeMisskeyPosts(body []byte, host string) ([]relay.Post, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, relay.Wrap(relay.ErrJSONShape, "decode misskey post array", err)
	}
	now := time.Now().Unix()
	posts := make([]relay.Post, 0, len(raw))
	for _, m := range raw {
		if err := supplementURI(m, host); err != nil {
			return nil, err
		}
		posts = append(posts, postFromMap(m, now))
	}
	return posts, nil
}

// DecodeMisskeyPost supplements and decodes a single Misskey-shaped post
// object, used when walking a reply tree one node at a time.
func DecodeMisskeyPost(m map[string]interface{}, host string) (relay.Post, error) {
	if err := supplementURI(m, host); err != nil {
		return relay.Post{}, err
	}
	return postFromMap(m, time.Now().Unix()), nil
}

func supplementURI(m map[string]interface{}, host string) error {
	id := getString(m, "id")
	if id == "" {
		return relay.RemoteShapeErr(fmt.Sprintf("missing field `id` in response from %s", host))
	}
	if _, ok := m["uri"]; !ok {
		m["uri"] = fmt.Sprintf("https://%s/notes/%s", host, id)
	}
	for _, nested := range []string{"renote", "reply"} {
		if child, ok := m[nested].(map[string]interface{}); ok {
			if err := supplementURI(child, host); err != nil {
				return err
			}
		}
	}
	return nil
}

func postFromMap(m map[string]interface{}, fetchTime int64) relay.Post {
	p := relay.Post{
		URI:        getString(m, "uri"),
		TimelineID: getString(m, "id"),
		FetchTime:  fetchTime,
	}
	if v := getString(m, "created_at"); v != "" {
		p.CreatedAt = v
	} else {
		p.CreatedAt = getString(m, "createdAt")
	}
	if v := getString(m, "in_reply_to_id"); v != "" {
		p.InReplyToID = v
	} else {
		p.InReplyToID = getString(m, "replyId")
	}
	if child, ok := m["reblog"].(map[string]interface{}); ok {
		r := postFromMap(child, fetchTime)
		p.Reblog = &r
	} else if child, ok := m["renote"].(map[string]interface{}); ok {
		r := postFromMap(child, fetchTime)
		p.Reblog = &r
	}
	return p
}

func getString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
