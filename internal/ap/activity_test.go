package ap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowsky/courier-relay/internal/relay"
)

func TestBuildAnnounce_TrendsTypeIsSingleElementArray(t *testing.T) {
	actor := relay.NewTrendsActor("relay.example", "m.example")
	activity := BuildAnnounce("relay.example", actor, "https://m.example/posts/1")

	raw, err := json.Marshal(activity)
	require.NoError(t, err)

	var decoded struct {
		Type []string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []string{"Announce"}, decoded.Type)
}

func TestBuildAnnounce_CompletionTypeCarriesRelay(t *testing.T) {
	actor := relay.NewCompletionActor("relay.example")
	activity := BuildAnnounce("relay.example", actor, "https://m.example/posts/1")

	raw, err := json.Marshal(activity)
	require.NoError(t, err)

	var decoded struct {
		Type []string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []string{"Announce", "Relay"}, decoded.Type)
}
