package inspect

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/refs/internal/errors"
	"github.com/vango-dev/refs/pkg/refs"
)

// Message types on the watch stream.
const (
	MessageHello  = "hello"
	MessageChange = "change"
)

// Message is one frame of the watch stream.
type Message struct {
	Type    string     `json:"type"`
	Watcher string     `json:"watcher,omitempty"`
	Ref     string     `json:"ref,omitempty"`
	Seq     uint64     `json:"seq,omitempty"`
	Time    int64      `json:"time"`
	Value   any        `json:"value,omitempty"`
	Refs    []Snapshot `json:"refs,omitempty"`
}

type watcher struct {
	id     string
	conn   *websocket.Conn
	send   chan Message
	done   chan struct{}
	logger *slog.Logger

	seq     atomic.Uint64
	dropped atomic.Uint64
	once    sync.Once
}

func (w *watcher) close() {
	w.once.Do(func() {
		close(w.done)
	})
}

// enqueue is called on the scheduler's goroutine and must not block.
func (w *watcher) enqueue(msg Message) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.send <- msg:
		return true
	default:
		if w.dropped.Add(1) == 1 {
			w.logger.Warn("watcher falling behind, dropping changes")
		}
		return false
	}
}

func (s *Server) handleWatch(rw http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["ref"]
	if len(names) == 0 {
		names = s.registry.Names()
	}
	hello := make([]Snapshot, 0, len(names))
	for _, name := range names {
		snap, ok := s.registry.Lookup(name)
		if !ok {
			s.writeJSON(rw, http.StatusNotFound, errorBody{Error: ErrUnknownRef.Error(), Name: name})
			return
		}
		hello = append(hello, snap)
	}

	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.Must(uuid.NewV7()).String()
	w := &watcher{
		id:     id,
		conn:   conn,
		send:   make(chan Message, s.sendBuffer),
		done:   make(chan struct{}),
		logger: s.logger.With("watcher", id),
	}

	var unsubs []refs.Unsubscribe
	for _, name := range names {
		unsub, err := s.registry.Watch(name, func(v any) {
			ok := w.enqueue(Message{
				Type:  MessageChange,
				Ref:   name,
				Seq:   w.seq.Add(1),
				Time:  time.Now().UnixMilli(),
				Value: v,
			})
			if !ok && s.droppedTotal != nil {
				s.droppedTotal.Inc()
			}
		})
		if err != nil {
			// Unregistered between lookup and subscribe.
			w.logger.Debug("skipping reference", "ref", name, "error", err)
			continue
		}
		unsubs = append(unsubs, unsub)
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	s.track(w)
	defer s.untrack(w)

	w.logger.Info("watcher connected", "refs", len(unsubs), "remote", r.RemoteAddr)

	if err := s.write(w, Message{Type: MessageHello, Watcher: id, Time: time.Now().UnixMilli(), Refs: hello}); err != nil {
		s.streamFailed(w, "hello", err)
		conn.Close()
		return
	}

	go s.readLoop(w)
	s.writeLoop(w)
}

// readLoop discards client messages and closes the watcher when the
// connection goes away or stops answering pings.
func (s *Server) readLoop(w *watcher) {
	defer w.close()

	readTimeout := 2 * s.heartbeat
	w.conn.SetReadDeadline(time.Now().Add(readTimeout))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				w.logger.Error("read error", "error", err)
			}
			return
		}
	}
}

// writeLoop owns every write on the connection: queued changes, heartbeat
// pings and the final close frame.
func (s *Server) writeLoop(w *watcher) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	defer func() {
		w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		w.conn.Close()
		w.logger.Info("watcher closed",
			"queued", w.seq.Load()-w.dropped.Load(),
			"dropped", w.dropped.Load())
	}()

	for {
		select {
		case msg := <-w.send:
			if err := s.write(w, msg); err != nil {
				s.streamFailed(w, "write", err)
				w.close()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(s.writeTimeout)
			if err := w.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.streamFailed(w, "ping", err)
				w.close()
				return
			}

		case <-w.done:
			return
		}
	}
}

// streamFailed records a watch stream that could not be written to.
func (s *Server) streamFailed(w *watcher, stage string, err error) *errors.Error {
	coded := errors.New("R302").Wrap(err).WithDetailf("%s: %v", stage, err)
	w.logger.Error("watch stream failed", "error", coded)
	if s.failuresTotal != nil {
		s.failuresTotal.Inc()
	}
	return coded
}

func (s *Server) write(w *watcher, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	w.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) track(w *watcher) {
	s.mu.Lock()
	s.watchers[w.id] = w
	s.mu.Unlock()
	if s.watchersGauge != nil {
		s.watchersGauge.Inc()
	}
}

func (s *Server) untrack(w *watcher) {
	s.mu.Lock()
	delete(s.watchers, w.id)
	s.mu.Unlock()
	if s.watchersGauge != nil {
		s.watchersGauge.Dec()
	}
}
