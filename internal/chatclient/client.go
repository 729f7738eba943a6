// Package chatclient is a Go client for the chat gateway. It keeps a reconciled timeline per
// conversation and falls back to HTTP when the WebSocket is down.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"chat-gateway/internal/models"
	"chat-gateway/internal/reconciler"
)

var (
	ErrNotConnected    = errors.New("websocket not connected")
	ErrDisconnected    = errors.New("websocket disconnected before ack")
	ErrReconnectFailed = errors.New("reconnect attempts exhausted")
	ErrClosed          = errors.New("client closed")
	ErrAckTimeout      = errors.New("timed out waiting for ack")
)

type Config struct {
	// BaseURL is the gateway's HTTP root, e.g. http://localhost:8083.
	BaseURL string
	// User identifies the caller on the WebSocket handshake and in optimistic entries.
	User models.UserRef
	// Token is the bearer JWT for HTTP calls.
	Token string

	MaxReconnects  uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AckTimeout     time.Duration

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Event is an inbound gateway event forwarded to the application.
type Event struct {
	Name string
	Data json.RawMessage
}

type frame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ackResult struct {
	Status       string             `json:"status"`
	Message      models.MessageView `json:"message"`
	ErrorMessage string             `json:"errorMessage"`
}

type Client struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	current   string
	timelines map[string]*reconciler.Timeline
	typing    map[string]*reconciler.Typing
	nextAck   int64
	pending   map[int64]chan ackResult
	connErr   error

	writeMu sync.Mutex
	events  chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config) *Client {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:       cfg,
		log:       cfg.Logger,
		timelines: make(map[string]*reconciler.Timeline),
		typing:    make(map[string]*reconciler.Typing),
		pending:   make(map[int64]chan ackResult),
		events:    make(chan Event, 256),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Events delivers every inbound frame. Events are dropped when the channel is full.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connect dials the gateway once. Later disconnects reconnect automatically.
func (c *Client) Connect(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	return c.dial(ctx)
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"userId": {c.cfg.User.ID}}.Encode()
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context) error {
	target, err := c.wsURL()
	if err != nil {
		return err
	}
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return backoff.Permanent(fmt.Errorf("handshake rejected: %w", err))
		}
		return fmt.Errorf("dial %s: %w", target, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connErr = nil
	current := c.current
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn)

	if current != "" {
		if err := c.writeFrame(frame{Event: "conversation:join", Data: mustJSON(current)}); err != nil {
			c.log.Warn("rejoin failed", "conversation_id", current, "error", err)
		}
	}
	return nil
}

// Connected reports whether the WebSocket is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ConnectionError returns the persistent error left after reconnection gave up.
func (c *Client) ConnectionError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connErr
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.dropConn(conn, err)
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Debug("ignoring malformed frame", "error", err)
			continue
		}
		c.handle(f)
	}
}

func (c *Client) dropConn(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.pending
	c.pending = make(map[int64]chan ackResult)
	c.mu.Unlock()

	_ = conn.Close()
	for _, ch := range pending {
		close(ch)
	}
	if c.ctx.Err() != nil {
		return
	}
	c.log.Warn("websocket disconnected, reconnecting", "error", cause)
	c.wg.Add(1)
	go c.reconnect()
}

func (c *Client) reconnect() {
	defer c.wg.Done()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
		defer cancel()
		return c.dial(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxReconnects-1), c.ctx))
	if err == nil {
		c.log.Info("websocket reconnected", "attempts", attempt)
		return
	}
	if c.ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	c.connErr = fmt.Errorf("%w after %d attempts: %v", ErrReconnectFailed, attempt, err)
	c.mu.Unlock()
	c.log.Error("websocket reconnection gave up", "attempts", attempt, "error", err)
}

func (c *Client) handle(f frame) {
	switch f.Event {
	case "ack":
		if f.Ack == nil {
			return
		}
		var res ackResult
		if err := json.Unmarshal(f.Data, &res); err != nil {
			res = ackResult{Status: "error", ErrorMessage: err.Error()}
		}
		c.mu.Lock()
		ch, ok := c.pending[*f.Ack]
		delete(c.pending, *f.Ack)
		c.mu.Unlock()
		if ok {
			ch <- res
		}
		return
	case "message:new":
		var msg models.MessageView
		if json.Unmarshal(f.Data, &msg) == nil {
			c.Timeline(msg.ConversationID).Apply(msg)
		}
	case "messages:read":
		var p struct {
			ConversationID string `json:"conversationId"`
			UserID         string `json:"userId"`
		}
		if json.Unmarshal(f.Data, &p) == nil {
			c.Timeline(p.ConversationID).ApplyRead(p.UserID)
		}
	case "messages:delivered":
		var p struct {
			ConversationID string   `json:"conversationId"`
			MessageIDs     []string `json:"messageIds"`
		}
		if json.Unmarshal(f.Data, &p) == nil {
			c.Timeline(p.ConversationID).ApplyDelivered(p.MessageIDs)
		}
	case "typing:started", "typing:stopped":
		var p struct {
			ConversationID string `json:"conversationId"`
			UserID         string `json:"userId"`
			UserName       string `json:"userName"`
		}
		if json.Unmarshal(f.Data, &p) == nil {
			if f.Event == "typing:started" {
				c.Typing(p.ConversationID).Start(p.UserID, p.UserName)
			} else {
				c.Typing(p.ConversationID).Stop(p.UserID)
			}
		}
	}

	select {
	case c.events <- Event{Name: f.Event, Data: f.Data}:
	default:
		c.log.Warn("event channel full, dropping", "event", f.Event)
	}
}

func (c *Client) writeFrame(f frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(f)
}

// Timeline returns the local timeline for a conversation, creating it on first use.
func (c *Client) Timeline(conversationID string) *reconciler.Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	tl, ok := c.timelines[conversationID]
	if !ok {
		tl = reconciler.NewTimeline(conversationID)
		c.timelines[conversationID] = tl
	}
	return tl
}

// Typing returns the typing indicators for a conversation.
func (c *Client) Typing(conversationID string) *reconciler.Typing {
	c.mu.Lock()
	defer c.mu.Unlock()
	tp, ok := c.typing[conversationID]
	if !ok {
		tp = reconciler.NewTyping()
		c.typing[conversationID] = tp
	}
	return tp
}

// Join makes conversationID current and joins its room when connected. The room is
// rejoined after every reconnect.
func (c *Client) Join(conversationID string) error {
	c.mu.Lock()
	c.current = conversationID
	c.mu.Unlock()
	err := c.writeFrame(frame{Event: "conversation:join", Data: mustJSON(conversationID)})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// Leave leaves the room and clears the current conversation.
func (c *Client) Leave(conversationID string) error {
	c.mu.Lock()
	if c.current == conversationID {
		c.current = ""
	}
	c.mu.Unlock()
	err := c.writeFrame(frame{Event: "conversation:leave", Data: mustJSON(conversationID)})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// SetTyping sends a typing indicator. It is a no-op while disconnected.
func (c *Client) SetTyping(conversationID string, typing bool) error {
	event := "typing:stop"
	if typing {
		event = "typing:start"
	}
	err := c.writeFrame(frame{Event: event, Data: mustJSON(conversationID)})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// Send adds an optimistic entry and delivers it over the WebSocket, or over HTTP when the
// socket is down. On failure the entry is marked failed and stays in the timeline.
func (c *Client) Send(ctx context.Context, conversationID, content, msgType string) (reconciler.Entry, error) {
	tl := c.Timeline(conversationID)
	entry := tl.AddOptimistic(c.cfg.User, content, msgType)
	return c.deliver(ctx, tl, entry)
}

// Retry resends a failed entry.
func (c *Client) Retry(ctx context.Context, conversationID, tempID string) (reconciler.Entry, error) {
	tl := c.Timeline(conversationID)
	entry, ok := tl.Retry(tempID)
	if !ok {
		return reconciler.Entry{}, fmt.Errorf("no failed message %s", tempID)
	}
	return c.deliver(ctx, tl, entry)
}

// deliver falls back to HTTP only when the send frame never reached the socket. Once the
// frame is written the server may have saved it, so a missing ack leaves the entry failed
// for an explicit Retry.
func (c *Client) deliver(ctx context.Context, tl *reconciler.Timeline, entry reconciler.Entry) (reconciler.Entry, error) {
	var (
		msg models.MessageView
		err error
	)
	if c.Connected() {
		msg, err = c.sendWS(ctx, entry)
		if errors.Is(err, ErrNotConnected) {
			msg, err = c.sendHTTP(ctx, entry)
		}
	} else {
		msg, err = c.sendHTTP(ctx, entry)
	}
	if err != nil {
		if !tl.MarkFailed(entry.ID, err.Error()) {
			if confirmed, ok := tl.Resolved(entry.ID); ok {
				return confirmed, nil
			}
		}
		entry.State = reconciler.StateFailed
		entry.Err = err.Error()
		return entry, err
	}
	tl.Apply(msg)
	return reconciler.Entry{MessageView: msg, State: reconciler.StateConfirmed}, nil
}

func (c *Client) sendWS(ctx context.Context, entry reconciler.Entry) (models.MessageView, error) {
	ch := make(chan ackResult, 1)
	c.mu.Lock()
	c.nextAck++
	id := c.nextAck
	c.pending[id] = ch
	c.mu.Unlock()

	payload := map[string]string{
		"conversationId": entry.ConversationID,
		"content":        entry.Content,
		"type":           entry.Type,
	}
	if err := c.writeFrame(frame{Event: "message:send", Ack: &id, Data: mustJSON(payload)}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		if errors.Is(err, ErrNotConnected) {
			return models.MessageView{}, err
		}
		return models.MessageView{}, fmt.Errorf("%w: write send frame: %v", ErrNotConnected, err)
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()
	select {
	case res, ok := <-ch:
		if !ok {
			return models.MessageView{}, ErrDisconnected
		}
		if res.Status != "ok" {
			return models.MessageView{}, errors.New(res.ErrorMessage)
		}
		return res.Message, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return models.MessageView{}, ErrAckTimeout
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return models.MessageView{}, ctx.Err()
	}
}

// Close stops reconnection and closes the socket.
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	var err error
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = conn.Close()
	}
	c.wg.Wait()
	return err
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
