package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hollowsky/courier-relay/internal/ap"
	"github.com/hollowsky/courier-relay/internal/relay"
)

// handleGetActor serves actor's ActivityPub actor document. The same route
// also accepts POSTs as actor's inbox (handlePostInbox).
func (s *Server) handleGetActor(actor relay.LocalActor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := ap.BuildActorDoc(actor, s.PublicKeyPEM)
		w.Header().Set("Content-Type", activityJSONType)
		json.NewEncoder(w).Encode(doc)
	}
}

// fetchActorDoc fetches the actor document at actorURI, signing the
// request as the local persona target, per spec: inbound signature
// verification always fetches the remote key with a signed GET.
func fetchActorDoc(ctx context.Context, s *Server, target relay.LocalActor, actorURI string) (relay.RemoteActor, string, error) {
	return ap.FetchActorDoc(ctx, s.HTTPClient, s.Signer, target.KeyID(), actorURI)
}
