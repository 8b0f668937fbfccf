package admin

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/vango-dev/switchyard/pkg/httperr"
	"github.com/vango-dev/switchyard/pkg/server"
)

// TailEvent is one retired request as streamed to tail clients.
type TailEvent struct {
	ID        string                `json:"id"`
	Time      time.Time             `json:"time"`
	Method    string                `json:"method"`
	Path      string                `json:"path"`
	Route     string                `json:"route,omitempty"`
	Version   string                `json:"version,omitempty"`
	Status    int                   `json:"status"`
	Bytes     int64                 `json:"bytes"`
	Duration  time.Duration         `json:"duration"`
	ErrorKind string                `json:"errorKind,omitempty"`
	Error     string                `json:"error,omitempty"`
	Timers    []server.HandlerTimer `json:"timers,omitempty"`
}

type tailClient struct {
	conn *websocket.Conn
	send chan TailEvent
	done chan struct{}
	once sync.Once
}

func (c *tailClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Tail streams after events to websocket clients. Slow clients lose
// events rather than holding up request retirement.
type Tail struct {
	clock    clock.Clock
	buffer   int
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*tailClient]struct{}
	closed  bool

	dropped atomic.Int64
}

// NewTail creates a tail subscribed to srv's after event. buffer is the
// number of events queued per client.
func NewTail(srv *server.Server, buffer int, logger *slog.Logger) *Tail {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tail{
		clock:   srv.Config().Clock,
		buffer:  buffer,
		logger:  logger,
		clients: make(map[*tailClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	srv.OnAfter(t.publish)
	return t
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away or the tail is closed.
func (t *Tail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Debug("tail upgrade failed", "error", err)
		return
	}

	c := &tailClient{
		conn: conn,
		send: make(chan TailEvent, t.buffer),
		done: make(chan struct{}),
	}
	if !t.add(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "tail closed"))
		c.close()
		return
	}
	defer t.remove(c)

	// Reads only serve to notice the peer closing.
	go func() {
		defer c.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			if err := conn.WriteJSON(ev); err != nil {
				c.close()
				return
			}
		}
	}
}

func (t *Tail) add(c *tailClient) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.clients[c] = struct{}{}
	return true
}

func (t *Tail) remove(c *tailClient) {
	t.mu.Lock()
	delete(t.clients, c)
	t.mu.Unlock()
	c.close()
}

func (t *Tail) publish(req *server.Request, res *server.Response, route *server.Route, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.clients) == 0 {
		return
	}

	ev := TailEvent{
		ID:       req.ID(),
		Time:     req.Time(),
		Method:   req.Method(),
		Path:     req.Path(),
		Version:  req.MatchedVersion(),
		Status:   res.StatusCode(),
		Bytes:    res.BytesWritten(),
		Duration: t.clock.Since(req.Time()),
		Timers:   req.Timers(),
	}
	if route != nil {
		ev.Route = route.Name
	}
	if err != nil {
		ev.ErrorKind = httperr.KindOf(err)
		ev.Error = err.Error()
	}

	for c := range t.clients {
		select {
		case c.send <- ev:
		default:
			t.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected tail clients.
func (t *Tail) Clients() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}

// Dropped returns the number of events dropped for slow clients.
func (t *Tail) Dropped() int64 {
	return t.dropped.Load()
}

// Close disconnects every client and refuses new ones.
func (t *Tail) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for c := range t.clients {
		c.close()
		delete(t.clients, c)
	}
}
