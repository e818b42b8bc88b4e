package ap

import "github.com/hollowsky/courier-relay/internal/relay"

// BuildActorDoc renders the actor document published for a local persona.
func BuildActorDoc(actor relay.LocalActor, publicKeyPEM string) ActorDoc {
	uri := actor.URI()
	return ActorDoc{
		Context:           ActivityStreamsNS,
		ID:                uri,
		Type:              "Service",
		Name:              actor.Name(),
		PreferredUsername: actor.PreferredUsername(),
		Inbox:             uri,
		Icon: &Image{
			Type:      "Image",
			MediaType: "image/jpeg",
			URL:       "https://" + actor.ServiceHost + "/icon.png",
		},
		PublicKey: PublicKey{
			ID:           actor.KeyID(),
			Owner:        uri,
			PublicKeyPem: publicKeyPEM,
		},
	}
}
