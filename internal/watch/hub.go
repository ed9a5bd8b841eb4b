// Package watch serves a read-only websocket feed of job events.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/jobs"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	ProgressAction = "job.progress"
	DoneAction     = "job.done"
)

// Message is one JSON frame sent to observers.
type Message struct {
	Type string   `json:"type"`
	Data JobEvent `json:"data"`
}

// JobEvent is the observer view of a jobs.Event. Worlds are never sent.
type JobEvent struct {
	JobID   string `json:"job_id"`
	Owner   uint64 `json:"owner"`
	Kind    string `json:"kind"`
	World   string `json:"world"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
	Step    *int   `json:"step,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewMessage converts a job event to its wire form.
func NewMessage(e jobs.Event) Message {
	m := Message{Type: ProgressAction, Data: JobEvent{
		JobID:   e.JobID,
		Owner:   e.Owner,
		Kind:    string(e.Kind),
		World:   e.WorldName,
		Stage:   string(e.Stage),
		Message: e.Message,
	}}
	if e.HasStep {
		step := e.Step
		m.Data.Step = &step
	}
	if e.Final {
		m.Type = DoneAction
		m.Data.Outcome = e.Outcome.String()
		if e.Err != nil {
			m.Data.Error = e.Err.Error()
		}
	}
	return m
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type observer struct {
	conn  *websocket.Conn
	send  chan []byte
	jobID string // empty = every job
}

// Hub fans job events out to websocket observers. Publish never blocks:
// observers that fall behind are disconnected.
type Hub struct {
	mu        sync.Mutex
	observers map[*observer]struct{}
	buffer    int
	log       *zap.Logger
}

func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		observers: make(map[*observer]struct{}),
		buffer:    buffer,
		log:       log,
	}
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Publish sends e to every interested observer.
func (h *Hub) Publish(e jobs.Event) {
	data, err := json.Marshal(NewMessage(e))
	if err != nil {
		h.log.Error("encode watch message", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for o := range h.observers {
		if o.jobID != "" && o.jobID != e.JobID {
			continue
		}
		select {
		case o.send <- data:
		default:
			h.log.Warn("watch observer too slow, dropping", zap.String("remote", o.conn.RemoteAddr().String()))
			h.removeLocked(o)
		}
	}
}

func (h *Hub) removeLocked(o *observer) {
	if _, ok := h.observers[o]; !ok {
		return
	}
	delete(h.observers, o)
	close(o.send)
}

func (h *Hub) remove(o *observer) {
	h.mu.Lock()
	h.removeLocked(o)
	h.mu.Unlock()
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for o := range h.observers {
		h.removeLocked(o)
	}
}

// ServeHTTP upgrades the request and streams events. The optional "job"
// query parameter restricts the feed to one job.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("watch upgrade failed", zap.Error(err))
		return
	}
	o := &observer{
		conn:  conn,
		send:  make(chan []byte, h.buffer),
		jobID: r.URL.Query().Get("job"),
	}
	h.mu.Lock()
	h.observers[o] = struct{}{}
	h.mu.Unlock()
	h.log.Info("watch observer connected", zap.String("remote", conn.RemoteAddr().String()), zap.String("job", o.jobID))

	go h.writePump(o)
	go h.readPump(o)
}

// readPump only services control frames; observers have nothing to say.
func (h *Hub) readPump(o *observer) {
	defer h.remove(o)
	o.conn.SetReadLimit(maxMessageSize)
	o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error { return o.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("watch observer closed", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(o *observer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-o.send:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				o.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := o.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Server is the HTTP listener carrying the hub.
type Server struct {
	http *http.Server
	ln   net.Listener
	log  *zap.Logger
}

// Listen binds addr and mounts hub at path. Serve must be called to accept.
func Listen(addr, path string, hub *Hub, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(path, hub)
	return &Server{
		http: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		ln:   ln,
		log:  log,
	}, nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve blocks until Shutdown.
func (s *Server) Serve() {
	if err := s.http.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("watch server stopped", zap.Error(err))
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
