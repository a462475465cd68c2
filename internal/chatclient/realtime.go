package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tripdesk/tripdesk-server/internal/proto"
	"github.com/tripdesk/tripdesk-server/internal/utils"
)

// ErrNotConnected is returned when a frame is written while the
// socket is down. Callers roll their optimistic state back and retry
// after the next reconnect.
var ErrNotConnected = errors.New("not connected")

// State represents the realtime connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// stablePeriod is how long a connection must hold before the backoff
// counter resets.
const stablePeriod = 60 * time.Second

// Config configures the realtime client.
type Config struct {
	BaseURL              string
	Token                string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
}

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(cfg *Config) *reconnector {
	return &reconnector{
		baseDelay:   cfg.ReconnectBaseDelay,
		maxDelay:    cfg.ReconnectMaxDelay,
		maxAttempts: cfg.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > stablePeriod {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
	r.connectedAt = time.Time{}
}

type dispatcher struct {
	mu            sync.RWMutex
	onNewMessage  []func(proto.EventNewMessageData)
	onServerError []func(tempID string, e proto.Error)
	onStateChange []func(State)
}

func (d *dispatcher) emitNewMessage(data proto.EventNewMessageData) {
	d.mu.RLock()
	handlers := append([]func(proto.EventNewMessageData){}, d.onNewMessage...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(data)
	}
}

func (d *dispatcher) emitServerError(tempID string, e proto.Error) {
	d.mu.RLock()
	handlers := append([]func(string, proto.Error){}, d.onServerError...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(tempID, e)
	}
}

func (d *dispatcher) emitStateChange(s State) {
	d.mu.RLock()
	handlers := append([]func(State){}, d.onStateChange...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(s)
	}
}

// AckResult carries the server's answer to a join or send frame.
type AckResult struct {
	Room    string
	Message *proto.MessagePayload
	Err     *proto.Error
}

type outboundFrame struct {
	Type   string          `json:"type"`
	Event  string          `json:"event,omitempty"`
	TempID string          `json:"tempId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *proto.Error    `json:"error,omitempty"`
}

// Realtime maintains a WebSocket connection to the chat server with
// automatic reconnects. Room subscriptions are replayed after each
// reconnect so the caller never resubscribes by hand.
type Realtime struct {
	cfg         *Config
	mu          sync.Mutex
	conn        *websocket.Conn
	state       State
	intentional bool
	cancelFn    context.CancelFunc

	dispatcher *dispatcher
	recon      *reconnector

	pendingMu sync.Mutex
	pending   map[string]chan AckResult

	joinedMu sync.Mutex
	joined   map[string]struct{} // conversation ids; "" marks the own room
}

// NewRealtime builds a realtime client. Connect must be called before
// any frame is sent.
func NewRealtime(cfg Config) *Realtime {
	cfg.defaults()
	return &Realtime{
		cfg:        &cfg,
		state:      StateDisconnected,
		dispatcher: &dispatcher{},
		recon:      newReconnector(&cfg),
		pending:    make(map[string]chan AckResult),
		joined:     make(map[string]struct{}),
	}
}

// OnNewMessage registers a handler for conversation broadcasts.
func (rt *Realtime) OnNewMessage(h func(proto.EventNewMessageData)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onNewMessage = append(rt.dispatcher.onNewMessage, h)
	rt.dispatcher.mu.Unlock()
}

// OnServerError registers a handler for error frames. The tempID
// identifies the rejected optimistic send, if any.
func (rt *Realtime) OnServerError(h func(tempID string, e proto.Error)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onServerError = append(rt.dispatcher.onServerError, h)
	rt.dispatcher.mu.Unlock()
}

// OnStateChange registers a handler for connection state transitions.
func (rt *Realtime) OnStateChange(h func(State)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onStateChange = append(rt.dispatcher.onStateChange, h)
	rt.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (rt *Realtime) State() State {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

func (rt *Realtime) setState(s State) {
	rt.mu.Lock()
	changed := rt.state != s
	rt.state = s
	rt.mu.Unlock()
	if changed {
		rt.dispatcher.emitStateChange(s)
	}
}

// Connect establishes the WebSocket connection and replays room
// subscriptions from before the last disconnect.
func (rt *Realtime) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	rt.state = StateConnecting
	rt.intentional = false
	rt.mu.Unlock()
	rt.dispatcher.emitStateChange(StateConnecting)

	wsURL := strings.Replace(rt.cfg.BaseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws?token=" + rt.cfg.Token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		rt.setState(StateDisconnected)
		return fmt.Errorf("websocket dial: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	rt.conn = conn
	rt.cancelFn = cancel
	rt.mu.Unlock()
	rt.recon.markConnected()
	rt.setState(StateConnected)

	go rt.readLoop(connCtx)
	go rt.rejoin(connCtx)

	return nil
}

// Disconnect closes the connection for good; no reconnect follows.
func (rt *Realtime) Disconnect() error {
	rt.mu.Lock()
	rt.intentional = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.mu.Unlock()

	rt.clearPending()
	rt.setState(StateDisconnected)

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// Reconnect resets the backoff and connects immediately.
func (rt *Realtime) Reconnect(ctx context.Context) error {
	rt.recon.reset()
	return rt.Connect(ctx)
}

// Join subscribes to a room and waits for the server's ack. Users
// pass an empty conversation id; staff name the conversation whose
// room they want. Returns the room name the server derived.
func (rt *Realtime) Join(ctx context.Context, conversationID string) (string, error) {
	tempID := "tmp-" + utils.NewID()
	data, _ := json.Marshal(proto.JoinData{ConversationID: conversationID})

	ch := rt.registerPending(tempID)
	if err := rt.writeFrame(ctx, proto.Inbound{
		Type:   proto.InboundTypeJoin,
		TempID: tempID,
		Data:   data,
	}); err != nil {
		rt.dropPending(tempID)
		return "", err
	}

	res, err := rt.awaitAck(ctx, tempID, ch)
	if err != nil {
		return "", err
	}
	if res.Err != nil {
		return "", fmt.Errorf("join rejected: %s", res.Err.Msg)
	}

	rt.joinedMu.Lock()
	rt.joined[conversationID] = struct{}{}
	rt.joinedMu.Unlock()

	return res.Room, nil
}

// Send writes a chat message frame correlated by tempID. The ack and
// the broadcast echo arrive through the registered handlers; the
// caller keeps its optimistic entry until either shows up.
func (rt *Realtime) Send(ctx context.Context, conversationID, tempID, text, imageURL string) error {
	data, _ := json.Marshal(proto.SendData{
		ConversationID: conversationID,
		Text:           text,
		ImageURL:       imageURL,
	})
	return rt.writeFrame(ctx, proto.Inbound{
		Type:   proto.InboundTypeSend,
		TempID: tempID,
		Data:   data,
	})
}

func (rt *Realtime) writeFrame(ctx context.Context, frame proto.Inbound) error {
	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, frame)
}

func (rt *Realtime) registerPending(tempID string) chan AckResult {
	ch := make(chan AckResult, 1)
	rt.pendingMu.Lock()
	rt.pending[tempID] = ch
	rt.pendingMu.Unlock()
	return ch
}

func (rt *Realtime) dropPending(tempID string) {
	rt.pendingMu.Lock()
	delete(rt.pending, tempID)
	rt.pendingMu.Unlock()
}

func (rt *Realtime) resolvePending(tempID string, res AckResult) bool {
	rt.pendingMu.Lock()
	ch, ok := rt.pending[tempID]
	if ok {
		delete(rt.pending, tempID)
	}
	rt.pendingMu.Unlock()
	if ok {
		ch <- res
	}
	return ok
}

func (rt *Realtime) clearPending() {
	rt.pendingMu.Lock()
	for k, ch := range rt.pending {
		close(ch)
		delete(rt.pending, k)
	}
	rt.pendingMu.Unlock()
}

func (rt *Realtime) awaitAck(ctx context.Context, tempID string, ch chan AckResult) (AckResult, error) {
	select {
	case res, ok := <-ch:
		if !ok {
			return AckResult{}, ErrNotConnected
		}
		return res, nil
	case <-time.After(10 * time.Second):
		rt.dropPending(tempID)
		return AckResult{}, fmt.Errorf("ack timeout")
	case <-ctx.Done():
		rt.dropPending(tempID)
		return AckResult{}, ctx.Err()
	}
}

func (rt *Realtime) readLoop(ctx context.Context) {
	for {
		rt.mu.Lock()
		conn := rt.conn
		rt.mu.Unlock()
		if conn == nil {
			return
		}

		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			rt.mu.Lock()
			intentional := rt.intentional
			rt.conn = nil
			cancel := rt.cancelFn
			rt.cancelFn = nil
			rt.mu.Unlock()
			// Release the rejoin goroutine and anything else bound to
			// this connection's context.
			if cancel != nil {
				cancel()
			}
			if intentional {
				return
			}

			rt.clearPending()
			rt.setState(StateDisconnected)

			if rt.cfg.AutoReconnect && rt.recon.shouldReconnect() {
				rt.scheduleReconnect()
			}
			return
		}

		rt.handleFrame(frame)
	}
}

func (rt *Realtime) handleFrame(frame outboundFrame) {
	switch frame.Type {
	case proto.OutboundTypeAck:
		res := AckResult{}
		if len(frame.Data) > 0 {
			var joined proto.AckJoinData
			if json.Unmarshal(frame.Data, &joined) == nil && joined.Room != "" {
				res.Room = joined.Room
			} else {
				var msg proto.MessagePayload
				if json.Unmarshal(frame.Data, &msg) == nil && msg.ID != "" {
					res.Message = &msg
				}
			}
		}
		rt.resolvePending(frame.TempID, res)
	case proto.OutboundTypeError:
		e := proto.Error{Code: "unknown", Msg: "unknown error"}
		if frame.Error != nil {
			e = *frame.Error
		}
		if !rt.resolvePending(frame.TempID, AckResult{Err: &e}) {
			rt.dispatcher.emitServerError(frame.TempID, e)
		}
	case proto.OutboundTypeEvent:
		if frame.Event != proto.EventNewMessage {
			return
		}
		var data proto.EventNewMessageData
		if json.Unmarshal(frame.Data, &data) != nil {
			return
		}
		rt.dispatcher.emitNewMessage(data)
	}
}

// rejoin replays room subscriptions after a (re)connect.
func (rt *Realtime) rejoin(ctx context.Context) {
	rt.joinedMu.Lock()
	rooms := make([]string, 0, len(rt.joined))
	for id := range rt.joined {
		rooms = append(rooms, id)
	}
	rt.joinedMu.Unlock()

	for _, id := range rooms {
		if _, err := rt.Join(ctx, id); err != nil {
			return
		}
	}
}

func (rt *Realtime) scheduleReconnect() {
	delay := rt.recon.nextDelay()
	rt.setState(StateReconnecting)

	time.Sleep(delay)

	if err := rt.Connect(context.Background()); err != nil {
		if rt.cfg.AutoReconnect && rt.recon.shouldReconnect() {
			rt.scheduleReconnect()
		} else {
			rt.setState(StateDisconnected)
		}
	}
}
