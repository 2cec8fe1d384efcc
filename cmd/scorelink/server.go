package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"scorelink/internal/errors"
	"scorelink/internal/metrics"
	"scorelink/internal/middleware"
	"scorelink/internal/models"
	"scorelink/internal/tracing"
	"scorelink/internal/transport"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// meshTransport is the transport hub as the HTTP layer sees it
type meshTransport interface {
	http.Handler
	NodeID() string
	ConnectedNodes(ctx context.Context) ([]transport.Node, error)
}

type healthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	errLog  *errors.Logger
	cfg     *models.Config
	metrics *metrics.Metrics
	db      healthChecker
	mesh    meshTransport
	sender  resultSender
	matches matchStore
	server  *http.Server
}

// NewServer builds the router. sender and matches may be nil when the node's role
// does not run that side; their routes are then not registered.
func NewServer(cfg *models.Config, logger *logrus.Logger, m *metrics.Metrics, db healthChecker, mesh meshTransport, sender resultSender, matches matchStore, verbose bool) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		errLog:  errors.WrapLogger(logger),
		cfg:     cfg,
		metrics: m,
		db:      db,
		mesh:    mesh,
		sender:  sender,
		matches: matches,
	}

	s.router.Use(middleware.Observability(logger, m, cfg.Server.TrustProxyHeaders))
	if verbose {
		detailed := middleware.DefaultDetailedLoggingConfig()
		detailed.TrustProxyHeaders = cfg.Server.TrustProxyHeaders
		s.router.Use(mux.MiddlewareFunc(middleware.DetailedLogging(logger, detailed)))
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.Handle("/ws", s.mesh).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	if s.sender != nil {
		api.HandleFunc("/results", s.handleFinishMatch()).Methods(http.MethodPost)
		api.HandleFunc("/pending", s.handleGetPending()).Methods(http.MethodGet)
		api.HandleFunc("/pending", s.handleDiscardPending()).Methods(http.MethodDelete)
		api.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	}

	if s.matches != nil {
		api.HandleFunc("/matches", s.handleListMatches()).Methods(http.MethodGet)
		api.HandleFunc("/matches/{id:[0-9]+}", s.handleGetMatch()).Methods(http.MethodGet)
		api.HandleFunc("/matches/{id:[0-9]+}/photo", s.handleAttachPhoto()).Methods(http.MethodPut)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.WithField("addr", s.cfg.Server.ListenAddr).Info("Starting HTTP server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status         string   `json:"status"`
	NodeID         string   `json:"nodeId"`
	Role           string   `json:"role"`
	ConnectedNodes []string `json:"connectedNodes"`
	Database       string   `json:"database"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:         "ok",
			NodeID:         s.mesh.NodeID(),
			Role:           string(s.cfg.Node.Role),
			ConnectedNodes: []string{},
			Database:       "ok",
		}

		status := http.StatusOK
		if err := s.db.Ping(r.Context()); err != nil {
			s.errLog.LogError(err, "Health check database ping failed")
			resp.Status = "degraded"
			resp.Database = "unavailable"
			status = http.StatusServiceUnavailable
		}

		if nodes, err := s.mesh.ConnectedNodes(r.Context()); err == nil {
			for _, n := range nodes {
				resp.ConnectedNodes = append(resp.ConnectedNodes, n.ID)
			}
		}

		s.writeJSON(w, r, status, resp)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).WithField("request_id", tracing.GetRequestID(r.Context())).
			Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := tracing.GetRequestID(r.Context())
	status := errors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		s.errLog.LogRetryableError(err, "Request failed", logrus.Fields{"request_id": requestID})
	}
	s.writeJSON(w, r, status, errors.ToHTTPResponse(err, requestID))
}
