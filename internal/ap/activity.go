package ap

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/hollowsky/courier-relay/internal/relay"
)

// BuildAccept constructs the Accept activity a local actor sends back in
// response to an inbound Follow. The Follow payload is echoed verbatim as
// the object, matching how the upstream relay replies. The id embeds the
// destination inbox (not the actor id) so two Follows from the same actor
// to different inboxes never collide.
func BuildAccept(hostname string, actor relay.LocalActor, followPayload json.RawMessage, followerInbox, followerActorID string) Activity {
	id := fmt.Sprintf("https://%s/activity/accept/%s/%s",
		hostname, url.PathEscape(actor.URI()), url.PathEscape(followerInbox))
	return Activity{
		Context: ActivityStreamsNS,
		ID:      id,
		Type:    "Accept",
		Actor:   actor.URI(),
		To:      followerActorID,
		Object:  json.RawMessage(followPayload),
	}
}

// BuildAnnounce constructs the Announce a local actor sends to relay a post
// to one of its followers. Completion announces carry the extra "Relay"
// type the upstream marks completion deliveries with; trends announces do
// not.
func BuildAnnounce(hostname string, actor relay.LocalActor, postURI string) Activity {
	id := fmt.Sprintf("https://%s/announce/%s", hostname, url.PathEscape(postURI))
	activityType := []string{"Announce"}
	if actor.Kind.Completion {
		activityType = []string{"Announce", "Relay"}
	}
	return Activity{
		Context: ActivityStreamsNS,
		ID:      id,
		Type:    activityType,
		Actor:   actor.URI(),
		To:      []string{PublicURI},
		Object:  postURI,
	}
}
