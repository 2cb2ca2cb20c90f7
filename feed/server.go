// Package feed accepts pointer, touch and resize events from a remote page shell
// over a websocket and serves the process metrics.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Message types accepted on /ws
const (
	TypePointer = "pointer"
	TypeTouch   = "touch"
	TypeResize  = "resize"
)

const maxMessageSize = 4096

// EventSink receives decoded events. Methods are called from connection
// goroutines; implementations hand them over to the host thread.
type EventSink interface {
	PointerMoved(x, y float64)
	Resized(width, height int)
}

// Message is one websocket frame. Coordinates are client-space pixels of the
// remote page. A touch message carries the active touch points; only the
// first one moves the field.
type Message struct {
	Type    string       `json:"type"`
	X       float64      `json:"x,omitempty"`
	Y       float64      `json:"y,omitempty"`
	Touches []TouchPoint `json:"touches,omitempty"`
	Width   int          `json:"width,omitempty"`
	Height  int          `json:"height,omitempty"`
}

// TouchPoint is one contact of a touch message
type TouchPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Options configures a Server
type Options struct {
	Addr string
	// AllowedOrigins lists accepted Origin headers; empty accepts all
	AllowedOrigins []string
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server is the pointer feed endpoint
type Server struct {
	sink     EventSink
	log      *zap.Logger
	upgrader websocket.Upgrader
	http     *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewServer creates a server forwarding events to sink
func NewServer(sink EventSink, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		sink:    sink,
		log:     log.Named("feed"),
		clients: make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routes for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe serves until Shutdown; a clean shutdown returns nil
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("pointer feed listening", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes open websockets and waits for
// their readers to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	s.closed = true
	for conn := range s.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
		s.wg.Done()
	}()

	log := s.log.With(zap.String("remote", r.RemoteAddr))
	log.Debug("feed client connected")
	conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("feed client read error", zap.Error(err))
			}
			return
		}
		if err := s.dispatch(data); err != nil {
			log.Debug("dropping feed message", zap.Error(err))
		}
	}
}

var errUnknownType = errors.New("feed: unknown message type")

func (s *Server) dispatch(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	switch msg.Type {
	case TypePointer:
		s.sink.PointerMoved(msg.X, msg.Y)
	case TypeTouch:
		if len(msg.Touches) == 0 {
			return errors.New("feed: touch without touch points")
		}
		s.sink.PointerMoved(msg.Touches[0].X, msg.Touches[0].Y)
	case TypeResize:
		if msg.Width <= 0 || msg.Height <= 0 {
			return errors.New("feed: non-positive resize")
		}
		s.sink.Resized(msg.Width, msg.Height)
	default:
		return errUnknownType
	}
	return nil
}

// Clients returns the number of open websocket connections
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}
