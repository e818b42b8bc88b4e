package relay

import (
	"net/url"
	"strings"
)

// Flavor is the upstream post-API dialect an instance speaks.
type Flavor string

const (
	FlavorA      Flavor = "a"      // Mastodon-shaped REST API
	FlavorM      Flavor = "m"      // Misskey-shaped POST-body API
	FlavorHybrid Flavor = "hybrid" // both present; reads prefer FlavorA
)

// ActorKind distinguishes the two local actor personas the relay serves.
// Completion has no source host; Trends is parameterized by the instance it
// mirrors.
type ActorKind struct {
	Completion bool
	// SourceHost is the instance a Trends actor mirrors. Empty when
	// Completion is true.
	SourceHost string
}

// LocalActor is one of the actor personas the relay publishes under its own
// hostname: either the single completion actor, or one trends actor per
// mirrored instance.
type LocalActor struct {
	ServiceHost string
	Kind        ActorKind
}

// NewCompletionActor builds the service's single completion persona.
func NewCompletionActor(serviceHost string) LocalActor {
	return LocalActor{ServiceHost: serviceHost, Kind: ActorKind{Completion: true}}
}

// NewTrendsActor builds the trends persona mirroring sourceHost.
func NewTrendsActor(serviceHost, sourceHost string) LocalActor {
	return LocalActor{ServiceHost: serviceHost, Kind: ActorKind{SourceHost: sourceHost}}
}

// Path is the URL path identifying this actor under the service host:
// "/completion" or "/trends/<source-host>".
func (a LocalActor) Path() string {
	if a.Kind.Completion {
		return "/completion"
	}
	return "/trends/" + a.Kind.SourceHost
}

// URI is this actor's canonical ActivityPub id. The same URI also serves as
// its inbox: GET returns the actor document, POST delivers activities.
func (a LocalActor) URI() string {
	return "https://" + a.ServiceHost + a.Path()
}

// KeyID is the id used in HTTP Signature headers for this actor's key.
func (a LocalActor) KeyID() string {
	return a.URI() + "#key"
}

// InboxURI is where other instances deliver activities addressed to this
// actor. It is the same endpoint as URI(): one route serves both GET (actor
// document) and POST (inbox).
func (a LocalActor) InboxURI() string {
	return a.URI()
}

// Name is the human-facing display name used in the actor document.
func (a LocalActor) Name() string {
	if a.Kind.Completion {
		return "Courier Six - Mission Complete"
	}
	return "Courier Six - Trends from [" + a.Kind.SourceHost + "]"
}

// PreferredUsername is the actor document's preferredUsername field.
func (a LocalActor) PreferredUsername() string {
	if a.Kind.Completion {
		return "courier-completion"
	}
	return "courier-" + a.Kind.SourceHost
}

// ParseLocalActorURI recovers a LocalActor from one of its own URIs, as
// produced by URI() above. Used by Store.ListActors, which only persists
// the URI string in the follows table. Mirrors the upstream relay's
// last-path-segment actor parsing: "completion" names the completion
// persona, anything else is the trends persona mirroring that instance.
func ParseLocalActorURI(serviceHost, uri string) (LocalActor, bool) {
	prefix := "https://" + serviceHost + "/"
	if !strings.HasPrefix(uri, prefix) {
		return LocalActor{}, false
	}
	rest := strings.TrimPrefix(uri, prefix)
	segments := strings.Split(rest, "/")
	last := segments[len(segments)-1]
	if last == "" {
		return LocalActor{}, false
	}
	if last == "completion" {
		return NewCompletionActor(serviceHost), true
	}
	return NewTrendsActor(serviceHost, last), true
}

// RemoteActor is a follower: the actor id that sent us a Follow, and the
// inbox we deliver to as a result of it.
type RemoteActor struct {
	ID    string
	Inbox string
}

// Host returns the hostname component of the remote actor's id.
func (r RemoteActor) Host() (string, bool) {
	return hostOf(r.ID)
}

// InboxHost returns the hostname component of the remote actor's inbox.
func (r RemoteActor) InboxHost() (string, bool) {
	return hostOf(r.Inbox)
}

// Post is a post fetched from an upstream instance, normalized to the
// fields the relay cares about regardless of which API dialect produced it.
type Post struct {
	URI         string
	TimelineID  string
	CreatedAt   string
	InReplyToID string
	Reblog      *Post
	FetchTime   int64
}

// Host returns the hostname component of the post's URI.
func (p Post) Host() (string, bool) {
	return hostOf(p.URI)
}

// IsReply reports whether this post is a reply to another post.
func (p Post) IsReply() bool {
	return p.InReplyToID != ""
}

// Origin unwraps a chain of boosts/reblogs/renotes to the post actually
// being boosted. Idempotent: Origin(Origin(p)) == Origin(p).
func (p Post) Origin() Post {
	cur := p
	for cur.Reblog != nil {
		cur = *cur.Reblog
	}
	return cur
}

func hostOf(rawURI string) (string, bool) {
	u, err := url.Parse(rawURI)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.Host, true
}
