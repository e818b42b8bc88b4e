// Package ap implements the wire-level ActivityPub shapes the relay speaks:
// actor documents, the Follow/Accept/Undo/Announce envelopes, and the
// helpers used to build and parse them.
package ap

import "encoding/json"

const ActivityStreamsNS = "https://www.w3.org/ns/activitystreams"

const PublicURI = "https://www.w3.org/ns/activitystreams#Public"

// ActorDoc is the actor document the relay publishes for each of its local
// personas (completion, trends-<instance>). Its inbox is its own id: the
// same route answers GET (this document) and POST (inbox delivery).
type ActorDoc struct {
	Context           string    `json:"@context"`
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Name              string    `json:"name"`
	PreferredUsername string    `json:"preferredUsername"`
	Inbox             string    `json:"inbox"`
	Icon              *Image    `json:"icon,omitempty"`
	PublicKey         PublicKey `json:"publicKey"`
}

// PublicKey is the RSA public key embedded in an actor document.
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Image is an ActivityPub Image object.
type Image struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

// Activity is the generic shape of the envelopes the relay sends: Accept
// and Announce. Object may be a string (Announce's target uri) or an
// embedded value (Accept echoes the inbound Follow payload).
type Activity struct {
	Context string      `json:"@context"`
	ID      string      `json:"id"`
	Type    interface{} `json:"type"`
	Actor   string      `json:"actor"`
	To      interface{} `json:"to,omitempty"`
	Object  interface{} `json:"object"`
}

// IncomingActivity is the shape of an activity delivered to one of our
// inboxes: we only need to know its type and, for Undo, the type of the
// object it wraps.
type IncomingActivity struct {
	Type   string          `json:"type"`
	Actor  string          `json:"actor"`
	Object json.RawMessage `json:"object"`
}

// ObjectType extracts the "type" field of the activity's object, when the
// object is an embedded JSON object rather than a bare id string. Used to
// recognize Undo{Follow}.
func (a IncomingActivity) ObjectType() string {
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(a.Object, &obj); err != nil {
		return ""
	}
	return obj.Type
}
