package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"chat-gateway/internal/models"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/presence"
	"chat-gateway/internal/service"
	"chat-gateway/internal/validation"
)

const dispatchTimeout = 10 * time.Second

// ChatService is the subset of the chat operations the gateway dispatches to.
type ChatService interface {
	Authorize(ctx context.Context, conversationID, userID string) error
	MarkReadAuthorized(ctx context.Context, userID, conversationID string) (int64, error)
	SendMessage(ctx context.Context, sender models.UserRef, in service.SendMessageInput, transport string) (models.MessageView, error)
	MarkDelivered(ctx context.Context, userID, conversationID string, messageIDs []string) (int64, error)
}

type Options struct {
	PingInterval    time.Duration
	PongTimeout     time.Duration
	EventsPerSecond float64
	AllowedOrigins  []string
	// Listeners observe presence transitions in addition to the gateway itself.
	Listeners []presence.Listener
	Events    *observability.Events
	Logger    *slog.Logger
}

// Gateway authenticates WebSocket connections and routes conversation events.
type Gateway struct {
	hub      *Hub
	presence *presence.Registry
	svc      ChatService
	auth     Authenticator
	upgrader websocket.Upgrader
	opts     Options
	log      *slog.Logger
	tracer   trace.Tracer
	wg       sync.WaitGroup
}

func NewGateway(svc ChatService, auth Authenticator, opts Options) *Gateway {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	g := &Gateway{
		hub:    NewHub(opts.Events, opts.Logger),
		svc:    svc,
		auth:   auth,
		opts:   opts,
		log:    opts.Logger,
		tracer: otel.Tracer("chat-gateway/ws"),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	g.presence = presence.NewRegistry(append([]presence.Listener{g}, opts.Listeners...)...)
	return g
}

func (g *Gateway) Presence() *presence.Registry { return g.presence }

func (g *Gateway) Hub() *Hub { return g.hub }

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// UserOnline broadcasts the transition to every connection.
func (g *Gateway) UserOnline(userID string) {
	g.hub.EmitAll(EventUserOnline, userPresencePayload{UserID: userID})
}

// UserOffline broadcasts the transition to every connection.
func (g *Gateway) UserOffline(userID string) {
	g.hub.EmitAll(EventUserOffline, userPresencePayload{UserID: userID})
}

// EmitToUser sends an event to every live connection of userID.
func (g *Gateway) EmitToUser(userID, event string, data any) {
	g.hub.EmitToConns(g.presence.Connections(userID), event, data)
}

// BroadcastMessage multicasts a message persisted outside the socket path to its room.
func (g *Gateway) BroadcastMessage(conversationID string, msg models.MessageView) {
	g.hub.EmitToRoom(conversationID, EventMessageNew, msg, nil)
}

// BroadcastRead notifies a room that readerID has read the conversation.
func (g *Gateway) BroadcastRead(conversationID, readerID string) {
	g.hub.EmitToRoom(conversationID, EventMessagesRead, readPayload{ConversationID: conversationID, UserID: readerID}, nil)
}

// Shutdown closes every connection and waits for their read loops to finish.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.hub.mu.RLock()
	clients := make([]*Client, 0, len(g.hub.clients))
	for _, c := range g.hub.clients {
		clients = append(clients, c)
	}
	g.hub.mu.RUnlock()
	for _, c := range clients {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) newLimiter() *rate.Limiter {
	burst := int(g.opts.EventsPerSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(g.opts.EventsPerSecond), burst)
}

// serve runs the pumps for an upgraded connection.
func (g *Gateway) serve(conn *websocket.Conn, info ConnInfo) {
	client := newClient(conn, info, g.newLimiter())
	g.connect(client)

	go client.writePump(g.opts.PingInterval)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		err := client.readPump(g.opts.PongTimeout, func(f Frame, decodeErr error) {
			g.dispatch(client, f, decodeErr)
		})
		g.disconnect(client, closeReason(err))
	}()
}

func closeReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (g *Gateway) connect(c *Client) {
	g.hub.Register(c)
	observability.IncWSActive()
	g.hub.publishLifecycle(context.Background(), c, "ws_connect", "")

	g.hub.EmitTo(c, EventUserConnected, nil, connectedPayload{UserID: c.info.UserID, SocketID: c.info.ConnID})
	g.presence.Register(c.info.UserID, c.info.ConnID)
	g.log.Info("websocket connected", "conn_id", c.info.ConnID, "user_id", c.info.UserID)
}

func (g *Gateway) disconnect(c *Client, reason string) {
	g.hub.publishLifecycle(context.Background(), c, "ws_disconnect", reason)
	g.hub.Unregister(c)
	_, offline := g.presence.Unregister(c.info.ConnID)
	observability.DecWSActive()
	c.close()
	g.log.Info("websocket disconnected", "conn_id", c.info.ConnID, "user_id", c.info.UserID, "offline", offline, "reason", reason)
}

// dispatch handles one inbound frame. Frames from a connection arrive sequentially.
func (g *Gateway) dispatch(c *Client, f Frame, decodeErr error) {
	if decodeErr != nil {
		observability.IncWSDropped("malformed")
		g.log.Debug("dropping malformed frame", "conn_id", c.info.ConnID, "error", decodeErr)
		g.sendError(c, "", "malformed frame")
		return
	}
	if !c.allow() {
		observability.IncWSDropped("rate_limited")
		g.log.Warn("rate limit exceeded", "conn_id", c.info.ConnID, "user_id", c.info.UserID, "event", f.Event)
		if f.Ack != nil {
			g.ack(c, f.Ack, AckPayload{Status: AckError, ErrorMessage: "rate limit exceeded"})
			return
		}
		g.sendError(c, f.Event, "rate limit exceeded")
		return
	}
	observability.IncWSEvent("in", f.Event)

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	if c.info.RequestID != "" {
		ctx = observability.WithRequestID(ctx, c.info.RequestID)
	}

	switch f.Event {
	case EventJoin:
		g.handleJoin(ctx, c, f)
	case EventLeave:
		if id, ok := decodeConversationID(f.Data); ok {
			g.hub.Leave(id, c)
		}
	case EventSend:
		g.handleSend(ctx, c, f)
	case EventTypingStart:
		g.handleTyping(c, f, EventTypingStarted)
	case EventTypingStop:
		g.handleTyping(c, f, EventTypingStopped)
	case EventDeliver:
		g.handleDeliver(ctx, c, f)
	default:
		observability.IncWSDropped("unknown_event")
		g.log.Debug("unknown event", "conn_id", c.info.ConnID, "event", f.Event)
		g.sendError(c, f.Event, "unknown event")
	}
}

func (g *Gateway) handleJoin(ctx context.Context, c *Client, f Frame) {
	conversationID, ok := decodeConversationID(f.Data)
	if !ok {
		g.sendError(c, f.Event, service.ErrInvalidConversationID.Error())
		return
	}
	if err := g.svc.Authorize(ctx, conversationID, c.info.UserID); err != nil {
		g.log.Info("join refused", "conn_id", c.info.ConnID, "user_id", c.info.UserID, "conversation_id", conversationID, "error", err)
		g.sendError(c, f.Event, err.Error())
		return
	}
	g.hub.Join(conversationID, c)

	modified, err := g.svc.MarkReadAuthorized(ctx, c.info.UserID, conversationID)
	if err != nil {
		g.log.Error("mark read on join failed", "conversation_id", conversationID, "user_id", c.info.UserID, "error", err)
		return
	}
	if modified > 0 {
		g.hub.EmitToRoom(conversationID, EventMessagesRead, readPayload{ConversationID: conversationID, UserID: c.info.UserID}, c)
	}
}

func (g *Gateway) handleSend(ctx context.Context, c *Client, f Frame) {
	ctx, span := g.tracer.Start(ctx, "ws.message.send", trace.WithAttributes(attribute.String("user.id", c.info.UserID)))
	defer span.End()

	var in sendPayload
	if err := json.Unmarshal(f.Data, &in); err != nil {
		g.ackError(c, f.Ack, service.ErrInvalidInput, span)
		return
	}
	if err := validation.Struct(in); err != nil {
		if !validation.IsObjectID(in.ConversationID) {
			g.ackError(c, f.Ack, service.ErrInvalidConversationID, span)
		} else {
			g.ackError(c, f.Ack, service.ErrInvalidMessageType, span)
		}
		return
	}
	span.SetAttributes(attribute.String("conversation.id", in.ConversationID))

	view, err := g.svc.SendMessage(ctx, c.info.Identity(), service.SendMessageInput{
		ConversationID: in.ConversationID,
		Content:        in.Content,
		Type:           in.Type,
	}, service.TransportWS)
	if err != nil {
		g.ackError(c, f.Ack, err, span)
		return
	}

	g.hub.EmitToRoom(in.ConversationID, EventMessageNew, view, nil)
	g.ack(c, f.Ack, AckPayload{Status: AckOK, Message: view})
}

func (g *Gateway) ackError(c *Client, ack *int64, err error, span trace.Span) {
	kind := service.KindOf(err)
	observability.IncAckError(kind.String())
	span.SetStatus(codes.Error, err.Error())
	if kind == service.KindPersistence {
		g.log.Error("message send failed", "conn_id", c.info.ConnID, "user_id", c.info.UserID, "error", err)
	}
	g.ack(c, ack, AckPayload{Status: AckError, ErrorMessage: err.Error()})
}

func (g *Gateway) handleTyping(c *Client, f Frame, out string) {
	conversationID, ok := decodeConversationID(f.Data)
	if !ok || !g.hub.InRoom(conversationID, c) {
		return
	}
	payload := typingPayload{ConversationID: conversationID, UserID: c.info.UserID}
	if out == EventTypingStarted {
		payload.UserName = c.info.UserName
	}
	g.hub.EmitToRoom(conversationID, out, payload, c)
}

func (g *Gateway) handleDeliver(ctx context.Context, c *Client, f Frame) {
	var in deliverPayload
	if err := json.Unmarshal(f.Data, &in); err != nil || validation.Struct(in) != nil {
		g.sendError(c, f.Event, service.ErrInvalidMessageIDs.Error())
		return
	}
	if _, err := g.svc.MarkDelivered(ctx, c.info.UserID, in.ConversationID, in.MessageIDs); err != nil {
		if service.KindOf(err) == service.KindPersistence {
			g.log.Error("mark delivered failed", "conversation_id", in.ConversationID, "error", err)
		}
		g.sendError(c, f.Event, err.Error())
		return
	}
	g.hub.EmitToRoom(in.ConversationID, EventMessagesDelivered, deliveredPayload{
		ConversationID: in.ConversationID,
		MessageIDs:     in.MessageIDs,
	}, nil)
}

func (g *Gateway) ack(c *Client, ack *int64, payload AckPayload) {
	if ack == nil {
		return
	}
	g.hub.EmitTo(c, EventAck, ack, payload)
}

func (g *Gateway) sendError(c *Client, event, message string) {
	g.hub.EmitTo(c, EventError, nil, ErrorPayload{Message: message, Event: event})
}

func decodeConversationID(raw json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", false
	}
	return id, validation.IsObjectID(id)
}
