package eventsub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/shellcore/event"
)

func TestRenderBatchAppliesDomainAttributeCompatibilityRule(t *testing.T) {
	b := event.MustNewBuilder(event.DomainTx)
	ty, err := b.Type("transfer")
	require.NoError(t, err)

	e := event.New(event.Block, ty).With("Domain", event.DomainTx).With("amount", "40")

	raw := renderBatch(Batch{Height: 7, Events: []event.Event{e}})

	var decoded struct {
		Height uint64 `json:"height"`
		Events []struct {
			Type       string            `json:"type"`
			Attributes map[string]string `json:"attributes"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, uint64(7), decoded.Height)
	require.Len(t, decoded.Events, 1)
	assert.Equal(t, "transfer", decoded.Events[0].Type)
	assert.Equal(t, event.DomainTx, decoded.Events[0].Attributes["Domain"])
	assert.Equal(t, "40", decoded.Events[0].Attributes["amount"])
}

func TestNewHubStartsWithNoSubscribers(t *testing.T) {
	h := NewHub()
	assert.Equal(t, 0, h.SubscriberCount())
}
