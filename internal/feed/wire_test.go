package feed

import (
	"testing"

	"margin_maker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInitialSnapshot(t *testing.T) {
	raw := []byte(`{
		"type": "channel_data",
		"message_id": 42,
		"contents": {
			"bids": [
				{"id": "b1", "uuid": "", "price": "199.5", "amount": "2"},
				{"id": "b2", "uuid": "", "price": "199.0", "amount": "5"}
			],
			"asks": [
				{"id": "a1", "uuid": "", "price": "200.0", "amount": "3"}
			]
		}
	}`)

	msg, err := parseBookMessage(raw)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NotNil(t, msg.Snapshot)

	assert.Equal(t, int64(42), msg.MessageID)
	require.Len(t, msg.Snapshot.Bids, 2)
	require.Len(t, msg.Snapshot.Asks, 1)
	assert.Equal(t, "b1", msg.Snapshot.Bids[0].ID)
	assert.True(t, msg.Snapshot.Bids[0].Price.Equal(decimal.RequireFromString("199.5")))
	assert.True(t, msg.Snapshot.Asks[0].Quantity.Equal(decimal.NewFromInt(3)))
	assert.Empty(t, msg.Updates)
}

func TestParseUpdates(t *testing.T) {
	raw := []byte(`{
		"type": "channel_data",
		"message_id": 43,
		"contents": {
			"updates": [
				{"side": "SELL", "type": "NEW", "id": "a2", "price": "200.5", "amount": "1"},
				{"side": "BUY", "type": "REMOVED", "id": "b1"},
				{"side": "SELL", "type": "UPDATED", "id": "a1", "amount": "2.5"}
			]
		}
	}`)

	msg, err := parseBookMessage(raw)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Nil(t, msg.Snapshot)
	require.Len(t, msg.Updates, 3)

	newEv := msg.Updates[0]
	assert.Equal(t, core.SideSell, newEv.Side)
	assert.Equal(t, core.DiffNew, newEv.Kind)
	require.NotNil(t, newEv.Price)
	assert.True(t, newEv.Price.Equal(decimal.RequireFromString("200.5")))

	removed := msg.Updates[1]
	assert.Equal(t, core.DiffRemoved, removed.Kind)
	assert.Nil(t, removed.Price)
	assert.Nil(t, removed.Quantity)

	updated := msg.Updates[2]
	assert.Equal(t, core.DiffUpdated, updated.Kind)
	assert.Nil(t, updated.Price)
	require.NotNil(t, updated.Quantity)
	assert.True(t, updated.Quantity.Equal(decimal.RequireFromString("2.5")))
}

func TestParseAckFrameIsNil(t *testing.T) {
	msg, err := parseBookMessage([]byte(`{"type": "subscribed", "channel": "orderbook"}`))
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestParseMalformedFrame(t *testing.T) {
	_, err := parseBookMessage([]byte(`{not json`))
	assert.Error(t, err)
}

func TestParseMalformedPrice(t *testing.T) {
	raw := []byte(`{
		"message_id": 44,
		"contents": {
			"updates": [{"side": "SELL", "type": "NEW", "id": "a2", "price": "abc", "amount": "1"}]
		}
	}`)
	_, err := parseBookMessage(raw)
	assert.Error(t, err)
}

func TestSubscriptionRequests(t *testing.T) {
	sub := subscribeRequest("WETH-DAI")
	assert.Equal(t, subscription{Type: "subscribe", Channel: "orderbook", ID: "WETH-DAI"}, sub)

	unsub := unsubscribeRequest("WETH-DAI")
	assert.Equal(t, "unsubscribe", unsub.Type)
}
