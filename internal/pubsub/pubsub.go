// Package pubsub decouples the chat dispatcher from the websocket hub. The
// dispatcher decides which connections see a frame and publishes a delivery;
// the hub subscribes and writes it to the sockets it owns.
package pubsub

import (
	"context"
)

// Message is one delivery on the bus. For the realtime path the topic is
// "ws.data.direct" and Payload is a JSON realtime.Delivery: the target
// connection ids plus the already encoded outbound frame.
type Message struct {
	// Topic selects the subscriber, see Event.Name.
	Topic string
	// UserID is the acting user when the publisher knows one. Deliveries
	// fan out to many users and leave it empty.
	UserID string
	// Payload is the JSON encoding of the event's typed value.
	Payload []byte
	// Metadata travels as transport headers and is not interpreted here.
	Metadata map[string]string
}

// Handler processes one Message. Errors are logged by the subscriber and
// the message is not redelivered.
type Handler func(ctx context.Context, msg Message) error

// Publisher hands deliveries to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber feeds a topic's deliveries to a Handler.
type Subscriber interface {
	// Subscribe registers handler for topic and returns once the
	// subscription is live. Delivery stops when ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
