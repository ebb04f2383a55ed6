package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft_messenger/internal/model"
)

func testSubscriber(h *Hub, address string) *subscriber {
	return &subscriber{hub: h, address: address, send: make(chan []byte, 1)}
}

func TestHubRoutesToParticipants(t *testing.T) {
	h := NewHub()
	alice, bob, carol := testSubscriber(h, "0xa"), testSubscriber(h, "0xb"), testSubscriber(h, "0xc")
	for _, s := range []*subscriber{alice, bob, carol} {
		require.True(t, h.register(s))
	}

	h.Publish(&model.IndexEvent{TokenIDs: []string{"1"}, Sender: "0xa", Recipient: "0xb"})

	for _, s := range []*subscriber{alice, bob} {
		select {
		case data := <-s.send:
			var ev model.IndexEvent
			require.NoError(t, json.Unmarshal(data, &ev))
			assert.Equal(t, []string{"1"}, ev.TokenIDs)
		default:
			t.Fatalf("%s got no event", s.address)
		}
	}
	assert.Empty(t, carol.send)
}

func TestHubSelfMessageDeliveredOnce(t *testing.T) {
	h := NewHub()
	alice := testSubscriber(h, "0xa")
	alice.send = make(chan []byte, 4)
	require.True(t, h.register(alice))

	h.Publish(&model.IndexEvent{TokenIDs: []string{"1"}, Sender: "0xa", Recipient: "0xa"})
	assert.Len(t, alice.send, 1)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub()
	slow := testSubscriber(h, "0xa")
	require.True(t, h.register(slow))

	ev := &model.IndexEvent{TokenIDs: []string{"1"}, Sender: "0xa", Recipient: "0xb"}
	h.Publish(ev)
	h.Publish(ev)

	assert.Equal(t, 0, h.Subscribers("0xa"))
	_, ok := <-slow.send
	assert.True(t, ok, "buffered event is still readable")
	_, ok = <-slow.send
	assert.False(t, ok, "channel closed after drop")

	h.unregister(slow)
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	s := testSubscriber(h, "0xa")
	require.True(t, h.register(s))

	h.Close()
	_, ok := <-s.send
	assert.False(t, ok)
	assert.False(t, h.register(testSubscriber(h, "0xa")))
}
