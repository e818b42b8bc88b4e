package ap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hollowsky/courier-relay/internal/relay"
)

// remoteActorDoc is the subset of an actor document we need once we've
// resolved an activity's "actor" field to a concrete remote actor.
type remoteActorDoc struct {
	ID        string     `json:"id"`
	Inbox     string     `json:"inbox"`
	PublicKey *PublicKey `json:"publicKey"`
}

// Signer is satisfied by internal/signer.Signer: it adds Date/Digest/
// Signature headers to an outgoing request, signed under keyID.
type Signer interface {
	Sign(req *http.Request, keyID string, body []byte) error
}

// FetchActorDoc performs a GET of an actor document, signed as keyID, and
// returns the resolved RemoteActor plus its PEM-encoded public key, used
// both to resolve an inbound activity's actor and to verify the signature
// on the request that carried it. sg may be nil to fetch unsigned.
func FetchActorDoc(ctx context.Context, client *http.Client, sg Signer, keyID, actorURI string) (relay.RemoteActor, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, actorURI, nil)
	if err != nil {
		return relay.RemoteActor{}, "", relay.Wrap(relay.ErrHTTPBuild, "build actor fetch request", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	if sg != nil {
		if err := sg.Sign(req, keyID, nil); err != nil {
			return relay.RemoteActor{}, "", relay.Wrap(relay.ErrSignatureCompute, "sign actor fetch", err)
		}
	}

	res, err := client.Do(req)
	if err != nil {
		return relay.RemoteActor{}, "", relay.Wrap(relay.ErrHTTPTransport, "fetch actor document", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return relay.RemoteActor{}, "", relay.Wrap(relay.ErrHTTPTransport, "read actor document", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return relay.RemoteActor{}, "", relay.RemoteStatusErr(res.StatusCode, string(body))
	}

	var doc remoteActorDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return relay.RemoteActor{}, "", relay.Wrap(relay.ErrJSONShape, "decode actor document", err)
	}
	if doc.ID == "" || doc.Inbox == "" {
		return relay.RemoteActor{}, "", relay.RemoteShapeErr(fmt.Sprintf("actor document at %s missing id/inbox", actorURI))
	}
	var pem string
	if doc.PublicKey != nil {
		pem = doc.PublicKey.PublicKeyPem
	}
	return relay.RemoteActor{ID: doc.ID, Inbox: doc.Inbox}, pem, nil
}
