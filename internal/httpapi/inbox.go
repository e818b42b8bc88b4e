package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hollowsky/courier-relay/internal/ap"
	"github.com/hollowsky/courier-relay/internal/relay"
	"github.com/hollowsky/courier-relay/internal/signer"
)

const maxInboxBody = 1 << 20

// acceptTimeout bounds the background Accept delivery a Follow triggers.
const acceptTimeout = 30 * time.Second

// handlePostInbox accepts Follow and Undo(Follow) activities addressed to
// actor. Every other activity type is rejected with 400.
func (s *Server) handlePostInbox(actor relay.LocalActor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxInboxBody))
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		var incoming ap.IncomingActivity
		if err := json.Unmarshal(body, &incoming); err != nil {
			http.Error(w, "bad activity", http.StatusBadRequest)
			return
		}

		resolver := &keyResolver{ctx: r.Context(), srv: s, target: actor}
		if _, err := signer.VerifySignature(r, resolver.resolve); err != nil {
			slog.Warn("httpapi: inbound signature rejected", "error", err, "actor", incoming.Actor)
			http.Error(w, "bad signature", http.StatusBadRequest)
			return
		}
		if err := signer.VerifyDigest(body, r.Header.Get("Digest")); err != nil {
			slog.Warn("httpapi: inbound digest mismatch", "error", err, "actor", incoming.Actor)
			http.Error(w, "bad digest", http.StatusBadRequest)
			return
		}
		remoteActor := resolver.found

		switch {
		case incoming.Type == "Follow":
			s.handleFollow(actor, remoteActor, body)
			writeAccepted(w)

		case incoming.Type == "Undo" && incoming.ObjectType() == "Follow":
			if err := s.Store.DelFollow(remoteActor.ID, actor.URI()); err != nil {
				slog.Error("httpapi: del_follow", "error", err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeAccepted(w)

		default:
			http.Error(w, "not a recognized request", http.StatusBadRequest)
		}
	}
}

func writeAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", activityJSONType)
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("{}"))
}

// handleFollow replies to a Follow asynchronously: the Accept is signed and
// sent in the background, and the follow relationship is only recorded in
// Store once that Accept succeeds.
func (s *Server) handleFollow(actor relay.LocalActor, remoteActor relay.RemoteActor, followPayload []byte) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), acceptTimeout)
		defer cancel()

		accept := ap.BuildAccept(s.Hostname, actor, followPayload, remoteActor.Inbox, remoteActor.ID)
		acceptBody, err := json.Marshal(accept)
		if err != nil {
			slog.Error("httpapi: marshal accept", "error", err)
			return
		}

		if err := s.postSigned(ctx, actor.KeyID(), remoteActor.Inbox, acceptBody); err != nil {
			slog.Error("httpapi: send accept", "inbox", remoteActor.Inbox, "error", err)
			return
		}

		if err := s.Store.AddFollow(remoteActor, actor.URI()); err != nil {
			slog.Error("httpapi: add_follow", "error", err)
		}
	}()
}

func (s *Server) postSigned(ctx context.Context, keyID, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return relay.Wrap(relay.ErrHTTPBuild, "build request", err)
	}
	req.Header.Set("Content-Type", activityJSONType)
	if err := s.Signer.Sign(req, keyID, body); err != nil {
		return err
	}
	res, err := s.HTTPClient.Do(req)
	if err != nil {
		return relay.Wrap(relay.ErrHTTPTransport, "deliver accept", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return relay.RemoteStatusErr(res.StatusCode, string(b))
	}
	return nil
}
