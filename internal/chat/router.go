package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/metrics"
)

// Router decodes inbound events and hands them to the matching handler.
// Failures are reported as message-error to the originating connection
// only; typing failures are logged and never surfaced.
type Router struct {
	messages   *MessageHandler
	typing     *TypingHandler
	rooms      *RoomHandler
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	routes     map[string]route
}

type route struct {
	handle func(ctx context.Context, sess Session, data json.RawMessage) error
	silent bool
}

// NewRouter wires every inbound event name to its handler. m may be nil.
func NewRouter(messages *MessageHandler, typing *TypingHandler, rooms *RoomHandler, dispatcher *Dispatcher, logger *slog.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		messages:   messages,
		typing:     typing,
		rooms:      rooms,
		dispatcher: dispatcher,
		logger:     logger.With("service", "router"),
		metrics:    m,
	}
	r.routes = map[string]route{
		EventJoinConversation:    {handle: r.join},
		EventLeaveConversation:   {handle: r.leave},
		EventSendMessage:         {handle: r.send},
		EventNewMessageBroadcast: {handle: r.broadcast},
		EventMessageEdited:       {handle: r.edit},
		EventMessageDeleted:      {handle: r.delete},
		EventMessageReaction:     {handle: r.react},
		EventMarkMessagesSeen:    {handle: r.markSeen},
		EventTypingStarted:       {handle: r.typingStarted, silent: true},
		EventTypingStopped:       {handle: r.typingStopped, silent: true},
	}
	return r
}

// Handle processes one inbound event to completion.
func (r *Router) Handle(ctx context.Context, sess Session, event string, data json.RawMessage) {
	r.metrics.EventReceived(event)

	rt, ok := r.routes[event]
	if !ok {
		r.fail(ctx, sess, event, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidPayload, event), false)
		return
	}

	if err := r.invoke(ctx, sess, rt, data); err != nil {
		r.fail(ctx, sess, event, err, rt.silent)
	}
}

// Reject reports an error for an inbound frame that never reached a handler.
func (r *Router) Reject(ctx context.Context, sess Session, event string, err error) {
	r.fail(ctx, sess, event, err, false)
}

func (r *Router) invoke(ctx context.Context, sess Session, rt route, data json.RawMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return rt.handle(ctx, sess, data)
}

func (r *Router) fail(ctx context.Context, sess Session, event string, err error, silent bool) {
	code := domain.ErrorCode(err)
	r.metrics.EventFailed(event, string(code))

	level := slog.LevelWarn
	if code == domain.CodeInternal {
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, "Event failed", "event", event, "code", code, "userID", sess.UserID(), "connID", sess.ConnID, "error", err)

	if silent {
		return
	}
	r.dispatcher.DeliverToConnection(ctx, sess.ConnID, EventMessageError, ErrorPayload{
		Error: domain.PublicMessage(err),
		Code:  code,
	})
}

func (r *Router) join(ctx context.Context, sess Session, data json.RawMessage) error {
	id, err := decodeConversationRef(data)
	if err != nil {
		return err
	}
	return r.rooms.Join(ctx, sess, id)
}

func (r *Router) leave(ctx context.Context, sess Session, data json.RawMessage) error {
	id, err := decodeConversationRef(data)
	if err != nil {
		return err
	}
	r.rooms.Leave(ctx, sess, id)
	return nil
}

func (r *Router) send(ctx context.Context, sess Session, data json.RawMessage) error {
	var p SendMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := r.messages.Send(ctx, sess, p)
	return err
}

func (r *Router) broadcast(ctx context.Context, sess Session, data json.RawMessage) error {
	var p BroadcastMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return r.messages.BroadcastPrecreated(ctx, sess, p)
}

func (r *Router) edit(ctx context.Context, sess Session, data json.RawMessage) error {
	var p EditMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := r.messages.Edit(ctx, sess, p)
	return err
}

func (r *Router) delete(ctx context.Context, sess Session, data json.RawMessage) error {
	var p DeleteMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return r.messages.Delete(ctx, sess, p)
}

func (r *Router) react(ctx context.Context, sess Session, data json.RawMessage) error {
	var p ReactionPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := r.messages.React(ctx, sess, p)
	return err
}

func (r *Router) markSeen(ctx context.Context, sess Session, data json.RawMessage) error {
	id, err := decodeConversationRef(data)
	if err != nil {
		return err
	}
	_, err = r.messages.MarkSeen(ctx, sess, id)
	return err
}

func (r *Router) typingStarted(ctx context.Context, sess Session, data json.RawMessage) error {
	id, err := decodeConversationRef(data)
	if err != nil {
		return err
	}
	return r.typing.Started(ctx, sess, id)
}

func (r *Router) typingStopped(ctx context.Context, sess Session, data json.RawMessage) error {
	id, err := decodeConversationRef(data)
	if err != nil {
		return err
	}
	return r.typing.Stopped(ctx, sess, id)
}
