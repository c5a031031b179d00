package realtime

import (
	"context"
	"encoding/json"

	"github.com/nfrund/relay/internal/pubsub"
)

// Delivery is one encoded frame addressed to a set of connections.
type Delivery struct {
	ConnIDs []string        `json:"conn_ids"`
	Frame   json.RawMessage `json:"frame"`
}

// DeliveryEvent carries frames from the dispatcher to the hub that owns the sockets.
var DeliveryEvent = pubsub.NewEvent[Delivery]("ws.data.direct", "Encoded frames addressed to live websocket connections")

// BusSender is a chat.Sender that publishes deliveries on the bus instead
// of writing to sockets directly.
type BusSender struct {
	pub pubsub.Publisher
}

// NewBusSender creates a BusSender publishing on pub.
func NewBusSender(pub pubsub.Publisher) *BusSender {
	return &BusSender{pub: pub}
}

// Send publishes frame for connIDs. An empty audience publishes nothing.
func (s *BusSender) Send(ctx context.Context, connIDs []string, frame []byte) error {
	if len(connIDs) == 0 {
		return nil
	}
	return pubsub.Publish(ctx, s.pub, DeliveryEvent, Delivery{ConnIDs: connIDs, Frame: frame})
}
