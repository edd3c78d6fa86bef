package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"depthscope/internal/depth"
	"depthscope/internal/model"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultStreamInterval = 3 * time.Second
)

// DepthService is the query surface the server exposes.
type DepthService interface {
	Depth(ctx context.Context, req depth.Request) (model.DepthResult, model.Source, error)
}

// Options tune the server. Zero values select defaults.
type Options struct {
	RequestTimeout time.Duration
	StreamInterval time.Duration
	Logger         *zap.Logger
}

// Server serves depth queries over HTTP and WebSocket.
type Server struct {
	svc            DepthService
	logger         *zap.Logger
	requestTimeout time.Duration
	streamInterval time.Duration
	httpServer     *http.Server
}

func New(svc DepthService, addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	streamInterval := opts.StreamInterval
	if streamInterval <= 0 {
		streamInterval = defaultStreamInterval
	}

	s := &Server{
		svc:            svc,
		logger:         logger,
		requestTimeout: requestTimeout,
		streamInterval: streamInterval,
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
	}
	return s
}

// Handler builds the route table. Exposed separately so tests can drive the
// server without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/depth", s.handleDepth)
	mux.HandleFunc("/v1/depth/ws", s.handleDepthWS)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

type depthResponse struct {
	model.DepthResult
	Source model.Source `json:"source"`
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := parseRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	result, source, err := s.svc.Depth(ctx, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, depthResponse{DepthResult: result, Source: source})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseRequest(r *http.Request) (depth.Request, error) {
	q := r.URL.Query()
	req := depth.Request{
		Pool:   q.Get("pool"),
		Dex:    q.Get("dex"),
		Token0: q.Get("token0"),
		Token1: q.Get("token1"),
	}

	chainID, err := strconv.ParseInt(q.Get("chain"), 10, 64)
	if err != nil {
		return depth.Request{}, model.NewInvalidInput("chain", "chain must be a numeric chain id")
	}
	req.ChainID = chainID

	req.USDPrice, err = strconv.ParseFloat(q.Get("usd_price"), 64)
	if err != nil {
		return depth.Request{}, model.NewInvalidInput("usd_price", "usd_price must be a number")
	}

	if raw := q.Get("max_levels"); raw != "" {
		req.MaxLevels, err = strconv.Atoi(raw)
		if err != nil {
			return depth.Request{}, model.NewInvalidInput("max_levels", "max_levels must be an integer")
		}
	}
	if raw := q.Get("precision"); raw != "" {
		req.Precision, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return depth.Request{}, model.NewInvalidInput("precision", "precision must be a number")
		}
	}
	if raw := q.Get("tick_spacing"); raw != "" {
		req.TickSpacing, err = strconv.Atoi(raw)
		if err != nil {
			return depth.Request{}, model.NewInvalidInput("tick_spacing", "tick_spacing must be an integer")
		}
	}

	return req, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var reqErr *model.RequestError
	if !errors.As(err, &reqErr) {
		reqErr = model.NewUpstreamUnavailable(err.Error())
	}

	status := http.StatusBadRequest
	if reqErr.Code == model.ErrCodeUpstreamUnavailable {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, reqErr)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("response encode failed", zap.Error(err))
	}
}
