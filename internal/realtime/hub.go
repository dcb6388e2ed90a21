// Package realtime pushes department status snapshots to display boards over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"

	"qlink/internal/models"
)

const (
	defaultDebounce   = 50 * time.Millisecond
	defaultPingEvery  = 20 * time.Second
	defaultStaleAfter = 90 * time.Second
	writeTimeout      = 3 * time.Second
	maxWorkers        = 20
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Source produces the current board snapshot.
type Source interface {
	DepartmentStatus(ctx context.Context) ([]models.DepartmentStatus, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]models.DepartmentStatus, error)

func (f SourceFunc) DepartmentStatus(ctx context.Context) ([]models.DepartmentStatus, error) {
	return f(ctx)
}

type Message struct {
	Type      string                    `json:"type"`
	Data      []models.DepartmentStatus `json:"data"`
	Changed   []int64                   `json:"changed_dept_ids,omitempty"`
	Timestamp string                    `json:"timestamp"`
}

type client struct {
	id       string
	conn     Conn
	mu       sync.Mutex
	closed   bool
	lastPong time.Time
}

type Options struct {
	Debounce   time.Duration
	PingEvery  time.Duration
	StaleAfter time.Duration
	Location   *time.Location
	Now        func() time.Time
	Logger     *slog.Logger
}

type Hub struct {
	source Source
	opts   Options
	log    *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	counter atomic.Uint64

	timerMu sync.Mutex
	timer   *time.Timer
	pending map[int64]struct{}

	cacheMu  sync.RWMutex
	cached   []byte
	cachedAt time.Time
}

func NewHub(source Source, opts Options) *Hub {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.PingEvery <= 0 {
		opts.PingEvery = defaultPingEvery
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		source:  source,
		opts:    opts,
		log:     opts.Logger.With("component", "display_hub"),
		clients: make(map[*client]struct{}),
		pending: make(map[int64]struct{}),
	}
}

// QueueChanged schedules a broadcast. Changes arriving while one is scheduled join
// it, so a display never lags a mutation by more than the debounce window.
func (h *Hub) QueueChanged(deptID int64) {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()

	h.pending[deptID] = struct{}{}
	if h.timer != nil {
		return
	}
	h.timer = time.AfterFunc(h.opts.Debounce, func() {
		h.timerMu.Lock()
		h.timer = nil
		changed := make([]int64, 0, len(h.pending))
		for id := range h.pending {
			changed = append(changed, id)
		}
		h.pending = make(map[int64]struct{})
		h.timerMu.Unlock()

		h.Broadcast(context.Background(), changed...)
	})
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(conn Conn) *client {
	c := &client{
		id:       fmt.Sprintf("display-%d", h.counter.Add(1)),
		conn:     conn,
		lastPong: h.opts.Now(),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Info("display connected", "client", c.id, "total", total)
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	c.mu.Unlock()
	if !wasClosed {
		_ = c.conn.Close()
	}
	if ok {
		h.log.Info("display disconnected", "client", c.id, "total", total)
	}
}

func (h *Hub) pong(c *client) {
	c.mu.Lock()
	c.lastPong = h.opts.Now()
	c.mu.Unlock()
}

func (h *Hub) build(ctx context.Context, changed []int64) ([]byte, error) {
	data, err := h.source.DepartmentStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("department status: %w", err)
	}
	return json.Marshal(Message{
		Type:      "queue_update",
		Data:      data,
		Changed:   changed,
		Timestamp: h.opts.Now().In(h.opts.Location).Format(time.RFC3339),
	})
}

// snapshot returns the last broadcast while it is still from today, else a fresh one.
func (h *Hub) snapshot(ctx context.Context) ([]byte, error) {
	h.cacheMu.RLock()
	cached, at := h.cached, h.cachedAt
	h.cacheMu.RUnlock()

	day := func(t time.Time) string { return t.In(h.opts.Location).Format("2006-01-02") }
	if len(cached) > 0 && day(at) == day(h.opts.Now()) {
		return cached, nil
	}
	msg, err := h.build(ctx, nil)
	if err != nil {
		return nil, err
	}
	h.store(msg)
	return msg, nil
}

func (h *Hub) store(msg []byte) {
	h.cacheMu.Lock()
	h.cached = msg
	h.cachedAt = h.opts.Now()
	h.cacheMu.Unlock()
}

// Broadcast sends a fresh snapshot to every client through a bounded worker pool.
func (h *Hub) Broadcast(ctx context.Context, changed ...int64) {
	msg, err := h.build(ctx, changed)
	if err != nil {
		h.log.Error("build snapshot failed", "error", err)
		return
	}
	h.store(msg)

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.fanOut(targets, func(c *client) error {
		return h.write(c, websocket.TextMessage, msg)
	})
}

func (h *Hub) fanOut(targets []*client, send func(*client) error) {
	if len(targets) == 0 {
		return
	}
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	for _, c := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(c *client) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := send(c); err != nil {
				h.log.Warn("display write failed", "client", c.id, "error", err)
				h.unregister(c)
			}
		}(c)
	}
	wg.Wait()
}

func (h *Hub) write(c *client, messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	_ = c.conn.SetWriteDeadline(h.opts.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// Sweep pings every client and drops those that have not answered within StaleAfter.
func (h *Hub) Sweep() {
	now := h.opts.Now()

	h.mu.RLock()
	var live, stale []*client
	for c := range h.clients {
		c.mu.Lock()
		dead := now.Sub(c.lastPong) > h.opts.StaleAfter
		c.mu.Unlock()
		if dead {
			stale = append(stale, c)
		} else {
			live = append(live, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.Info("dropping stale display", "client", c.id)
		h.unregister(c)
	}
	h.fanOut(live, func(c *client) error {
		return h.write(c, websocket.PingMessage, nil)
	})
}

// Run sweeps clients on the ping interval until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.PingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Sweep()
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
}

// Attach registers conn and sends it the current snapshot. The returned functions
// record a pong and detach the connection.
func (h *Hub) Attach(ctx context.Context, conn Conn) (pong func(), detach func()) {
	c := h.register(conn)

	msg, err := h.snapshot(ctx)
	if err != nil {
		h.log.Error("initial snapshot failed", "client", c.id, "error", err)
	} else if err := h.write(c, websocket.TextMessage, msg); err != nil {
		h.log.Warn("initial write failed", "client", c.id, "error", err)
		h.unregister(c)
	}
	return func() { h.pong(c) }, func() { h.unregister(c) }
}

// Serve is the websocket handler for display boards.
func (h *Hub) Serve(c *websocket.Conn) {
	pong, detach := h.Attach(context.Background(), c)
	defer detach()

	_ = c.SetReadDeadline(time.Now().Add(h.opts.StaleAfter))
	c.SetPongHandler(func(string) error {
		pong()
		return c.SetReadDeadline(time.Now().Add(h.opts.StaleAfter))
	})

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure,
			) {
				h.log.Warn("display closed unexpectedly", "error", err)
			}
			return
		}
	}
}
