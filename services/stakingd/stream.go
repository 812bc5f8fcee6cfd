package stakingd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"nftstake/core/events"
)

const (
	wsWriteTimeout       = 10 * time.Second
	streamBufferSize     = 64
	streamMessageVersion = 1
)

// StreamMessage is the JSON frame pushed to websocket subscribers.
type StreamMessage struct {
	Version    int               `json:"version"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  time.Time         `json:"emittedAt"`
}

type subscriber struct {
	types map[string]struct{}
	ch    chan []byte
}

func (s *subscriber) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Stream broadcasts committed events to websocket subscribers. Subscribers
// that fall behind by more than the buffer are disconnected rather than
// blocking the engine.
type Stream struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
	now    func() time.Time
}

// NewStream creates an empty broadcaster.
func NewStream(logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		subs:   make(map[*subscriber]struct{}),
		logger: logger.With(slog.String("component", "stream")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Emit implements events.Emitter.
func (s *Stream) Emit(evt events.Event) {
	rendered := events.Render(evt)
	if s == nil || rendered == nil {
		return
	}
	data, err := json.Marshal(StreamMessage{
		Version:    streamMessageVersion,
		Type:       rendered.Type,
		Attributes: rendered.Attributes,
		EmittedAt:  s.now(),
	})
	if err != nil {
		s.logger.Error("encode stream message", slog.Any("error", err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if !sub.wants(rendered.Type) {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			delete(s.subs, sub)
			close(sub.ch)
			s.logger.Warn("stream subscriber dropped", slog.String("reason", "slow consumer"))
		}
	}
}

// Subscribe registers a subscriber for the given event types (all when
// empty). The returned cancel function must be called to release it.
func (s *Stream) Subscribe(types ...string) (<-chan []byte, func()) {
	sub := &subscriber{ch: make(chan []byte, streamBufferSize)}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			if t = strings.TrimSpace(t); t != "" {
				sub.types[t] = struct{}{}
			}
		}
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[sub]; ok {
				delete(s.subs, sub)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Subscribers reports the number of connected subscribers.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// ServeHTTP upgrades the request to a websocket and streams events until
// either side closes. The optional "type" query parameter is a comma
// separated filter.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter []string
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		filter = strings.Split(raw, ",")
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	updates, cancel := s.Subscribe(filter...)
	defer cancel()
	if err := pump(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func pump(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusTryAgainLater, "subscriber lagged")
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
