package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
	"lumen-agent/internal/infra/metrics"
	"lumen-agent/internal/infra/middleware"
)

const (
	sendQueueSize = 256
	writeTimeout  = 5 * time.Second
)

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (any, error)

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
	// hydrated holds the ids sent in the snapshot frame; live copies of
	// those events are skipped.
	hydrated map[string]struct{}
}

func (cc *clientConn) close() { cc.closeOnce.Do(func() { close(cc.done) }) }

// Options configures a Server.
type Options struct {
	Addr        string
	Auth        Authenticator // nil admits everyone
	Metrics     *metrics.Metrics
	MetricsAPI  http.Handler // served at MetricsPath when set
	MetricsPath string       // default /metrics
	RatePerMin  int
	Burst       int
	Logger      *slog.Logger
}

// Server is the WebSocket gateway that hydrates clients with the event
// snapshot, forwards live events and exposes RPC methods.
type Server struct {
	bus     domain.EventBus
	auth    Authenticator
	metrics *metrics.Metrics
	logger  *slog.Logger
	opts    Options

	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler

	clientsMu sync.Mutex
	clients   map[uint64]*clientConn
	nextID    atomic.Uint64

	mu        sync.Mutex
	httpSrv   *http.Server
	boundAddr string
	unsubAll  func()
}

// NewServer creates a gateway server and starts forwarding bus events.
func NewServer(bus domain.EventBus, opts Options) *Server {
	if opts.Auth == nil {
		opts.Auth = NewStaticTokenAuth(nil)
	}
	s := &Server{
		bus:      bus,
		auth:     opts.Auth,
		metrics:  opts.Metrics,
		logger:   logger.Component(opts.Logger, "gateway"),
		opts:     opts,
		handlers: make(map[string]RPCHandler),
		clients:  make(map[uint64]*clientConn),
	}
	s.unsubAll = bus.SubscribeAll(func(event domain.Event) { s.forward(context.Background(), event) })
	return s
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// Methods returns the registered RPC method names.
func (s *Server) Methods() []string {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	out := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		out = append(out, m)
	}
	return out
}

// Handler returns the HTTP handler serving /ws, /healthz and /metrics.
// Start uses it; tests can mount it on httptest.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.opts.MetricsAPI != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, requireAuth(s.auth, s.opts.MetricsAPI))
	}
	limited := middleware.RateLimit(ctx, s.opts.RatePerMin, s.opts.Burst)(mux)
	return middleware.SecurityHeaders(limited)
}

// Start begins accepting connections. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	srv := &http.Server{Handler: s.Handler(ctx), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.httpSrv = srv
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info("gateway started", "addr", listener.Addr().String())

	stop := context.AfterFunc(ctx, func() { _ = s.Stop(context.Background()) })
	defer stop()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubAll != nil {
		s.unsubAll()
		s.unsubAll = nil
	}
	srv := s.httpSrv
	s.httpSrv = nil
	s.mu.Unlock()

	s.clientsMu.Lock()
	for id, cc := range s.clients {
		cc.close()
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, id)
	}
	s.clientsMu.Unlock()

	if srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// BoundAddr returns the address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

// forward queues a live event on every client. Slow clients lose events
// rather than stalling the bus.
func (s *Server) forward(_ context.Context, event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("encode event", "type", event.Type, "error", err)
		return
	}
	frame := Frame{Type: FrameTypeEvent, Payload: payload}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for id, cc := range s.clients {
		if _, seen := cc.hydrated[event.ID]; seen {
			delete(cc.hydrated, event.ID)
			continue
		}
		select {
		case cc.sendCh <- frame:
		default:
			s.logger.Warn("dropped event for slow client", "conn_id", id, "type", event.Type)
		}
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	info, err := s.auth.Authenticate(requestToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   info,
		ws:     ws,
		sendCh: make(chan Frame, sendQueueSize),
		done:   make(chan struct{}),
	}
	if err := s.register(connID, cc); err != nil {
		s.logger.Warn("snapshot hydration failed", "conn_id", connID, "error", err)
		ws.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}
	s.metrics.ClientConnected(1)
	s.logger.Info("gateway client connected", "conn_id", connID, "client", info.Name)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)

	cc.close()
	s.clientsMu.Lock()
	delete(s.clients, connID)
	s.clientsMu.Unlock()
	s.metrics.ClientConnected(-1)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

// register queues the snapshot frame and adds the client while holding the
// client lock, so no live event is forwarded between the two.
func (s *Server) register(id uint64, cc *clientConn) error {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	events := s.bus.Snapshot()
	payload, err := json.Marshal(events)
	if err != nil {
		return err
	}
	cc.hydrated = make(map[string]struct{}, len(events))
	for _, e := range events {
		cc.hydrated[e.ID] = struct{}{}
	}
	cc.sendCh <- Frame{Type: FrameTypeSnapshot, Payload: payload}
	s.clients[id] = cc
	return nil
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		go s.dispatchRPC(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.sendResponse(cc, req.ID, nil, domain.NewDomainError("gateway.rpc", domain.ErrRPCMethodNotFound, req.Method))
		return
	}

	result, err := handler(ctx, cc.info, req.Payload)
	s.sendResponse(cc, req.ID, result, err)
}

func (s *Server) sendResponse(cc *clientConn, id uint64, result any, err error) {
	resp := Frame{Type: FrameTypeResponse, ID: id}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	} else if result != nil {
		payload, mErr := json.Marshal(result)
		if mErr != nil {
			resp.Error = mErr.Error()
		} else {
			resp.Payload = payload
		}
	}
	select {
	case cc.sendCh <- resp:
	case <-cc.done:
	default:
		s.logger.Warn("dropped RPC response for slow client", "frame_id", id)
	}
}
