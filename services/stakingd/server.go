package stakingd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftstake/gateway/middleware"
	"nftstake/native/nftstake"
	"nftstake/observability"
)

const maxRequestBody = 1 << 16

var (
	errMissingSubject = errors.New("caller identity required")
	errBadSubject     = errors.New("caller identity is not a holder address")
)

// ServerConfig captures the dependencies required to construct the server.
type ServerConfig struct {
	Engine     *nftstake.Engine
	Stream     *Stream
	Auth       middleware.AuthConfig
	RateLimits map[string]middleware.RateLimit
	Decimals   uint8
	Metrics    *observability.StakingMetrics
	// Registerer and Gatherer back request metrics and /metrics. Nil selects
	// the prometheus defaults.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

// Server exposes the staking engine over HTTP.
type Server struct {
	engine   *nftstake.Engine
	stream   *Stream
	decimals uint8
	metrics  *observability.StakingMetrics
	logger   *slog.Logger
	now      func() time.Time

	router http.Handler
}

// NewServer constructs the HTTP router.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stream == nil {
		cfg.Stream = NewStream(cfg.Logger)
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	srv := &Server{
		engine:   cfg.Engine,
		stream:   cfg.Stream,
		decimals: cfg.Decimals,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
	}
	srv.router = srv.buildRouter(cfg)
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg ServerConfig) http.Handler {
	auth := middleware.NewAuthenticator(cfg.Auth, cfg.Logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimits, cfg.Logger)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "stakingd",
		Enabled:     true,
		LogRequests: true,
		Registerer:  cfg.Registerer,
	}, cfg.Logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(api chi.Router) {
		api.With(obs.Middleware("config")).Get("/config", s.getConfig)
		api.With(obs.Middleware("config"), auth.Middleware(ScopeAdmin)).Post("/config", s.initializeConfig)

		api.With(obs.Middleware("holders")).Get("/holders/{addr}", s.getHolder)
		api.With(obs.Middleware("holders"), auth.Middleware(ScopeHolder), limiter.Middleware("holders")).Post("/holders", s.registerHolder)

		api.With(obs.Middleware("locks")).Get("/locks/{item}", s.getLock)
		api.Group(func(locks chi.Router) {
			locks.Use(obs.Middleware("locks"), auth.Middleware(ScopeHolder), limiter.Middleware("locks"))
			locks.Post("/locks/{item}", s.lockItem)
			locks.Delete("/locks/{item}", s.unlockItem)
		})

		api.With(obs.Middleware("claim"), auth.Middleware(ScopeHolder), limiter.Middleware("claim")).Post("/claim", s.claim)

		api.With(obs.Middleware("events")).Get("/events", s.stream.ServeHTTP)
	})
	return r
}

type configRequest struct {
	PointsPerLock       uint8  `json:"pointsPerLock"`
	MaxLocks            uint8  `json:"maxLocks"`
	FreezePeriodSeconds uint32 `json:"freezePeriodSeconds"`
	Collection          string `json:"collection"`
}

type configView struct {
	ConfigID            string `json:"configId"`
	PointsPerLock       uint8  `json:"pointsPerLock"`
	MaxLocks            uint8  `json:"maxLocks"`
	FreezePeriodSeconds uint32 `json:"freezePeriodSeconds"`
	Collection          string `json:"collection"`
}

type holderView struct {
	Holder      string `json:"holder"`
	Points      uint32 `json:"points"`
	ActiveLocks uint8  `json:"activeLocks"`
}

type lockView struct {
	Owner        string `json:"owner"`
	Item         string `json:"item"`
	LockedAt     int64  `json:"lockedAt"`
	UnlockableAt int64  `json:"unlockableAt,omitempty"`
}

type claimView struct {
	Holder string `json:"holder"`
	Points uint32 `json:"points"`
	Amount string `json:"amount"`
}

func newConfigView(id nftstake.ConfigID, cfg *nftstake.Config) configView {
	return configView{
		ConfigID:            id.String(),
		PointsPerLock:       cfg.PointsPerLock,
		MaxLocks:            cfg.MaxLocks,
		FreezePeriodSeconds: cfg.FreezePeriod,
		Collection:          cfg.Collection.String(),
	}
}

func newHolderView(h *nftstake.Holder) holderView {
	return holderView{Holder: h.ID.String(), Points: h.Points, ActiveLocks: h.ActiveLocks}
}

func (s *Server) initializeConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	collection, err := nftstake.ParseCollectionID(req.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg := nftstake.Config{
		PointsPerLock: req.PointsPerLock,
		MaxLocks:      req.MaxLocks,
		FreezePeriod:  req.FreezePeriodSeconds,
		Collection:    collection,
	}
	start := s.now()
	id, err := s.engine.InitializeConfig(cfg)
	s.observe("configure", start, err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newConfigView(id, &cfg))
}

func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.engine.Config()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	id, err := s.engine.ConfigID()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newConfigView(id, cfg))
}

func (s *Server) registerHolder(w http.ResponseWriter, r *http.Request) {
	holder, err := callerHolder(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	start := s.now()
	rec, err := s.engine.RegisterHolder(holder)
	s.observe("register", start, err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newHolderView(rec))
}

func (s *Server) getHolder(w http.ResponseWriter, r *http.Request) {
	holder, err := nftstake.ParseHolderID(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.engine.Holder(holder)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newHolderView(rec))
}

func (s *Server) lockItem(w http.ResponseWriter, r *http.Request) {
	holder, err := callerHolder(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	item, err := nftstake.ParseItemID(chi.URLParam(r, "item"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start := s.now()
	rec, err := s.engine.Lock(r.Context(), holder, item)
	s.observe("lock", start, err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.metrics.LockOpened()
	view := lockView{Owner: rec.Owner.String(), Item: rec.Item.String(), LockedAt: rec.LockedAt}
	if cfg, err := s.engine.Config(); err == nil {
		view.UnlockableAt = rec.UnlockableAt(cfg)
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) unlockItem(w http.ResponseWriter, r *http.Request) {
	holder, err := callerHolder(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	item, err := nftstake.ParseItemID(chi.URLParam(r, "item"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start := s.now()
	rec, err := s.engine.Unlock(r.Context(), holder, item)
	s.observe("unlock", start, err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.metrics.LockClosed()
	writeJSON(w, http.StatusOK, newHolderView(rec))
}

func (s *Server) getLock(w http.ResponseWriter, r *http.Request) {
	item, err := nftstake.ParseItemID(chi.URLParam(r, "item"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, unlockableAt, err := s.engine.LockStatus(item)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lockView{
		Owner:        rec.Owner.String(),
		Item:         rec.Item.String(),
		LockedAt:     rec.LockedAt,
		UnlockableAt: unlockableAt,
	})
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	holder, err := callerHolder(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	start := s.now()
	payout, err := s.engine.Claim(r.Context(), holder)
	s.observe("claim", start, err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.metrics.RecordClaim(payout)
	writeJSON(w, http.StatusOK, claimView{
		Holder: holder.String(),
		Points: payout,
		Amount: PayoutAmount(payout, s.decimals).Dec(),
	})
}

func (s *Server) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = nftstake.Classify(err).String()
	}
	s.metrics.ObserveOperation(op, outcome, s.now().Sub(start))
}

func callerHolder(r *http.Request) (nftstake.HolderID, error) {
	sub, ok := middleware.Subject(r.Context())
	if !ok {
		return nftstake.HolderID{}, errMissingSubject
	}
	holder, err := nftstake.ParseHolderID(sub)
	if err != nil {
		return nftstake.HolderID{}, errBadSubject
	}
	return holder, nil
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, nftstake.ErrHolderNotFound),
		errors.Is(err, nftstake.ErrLockNotFound),
		errors.Is(err, nftstake.ErrNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, nftstake.ErrNotOwner):
		return http.StatusForbidden
	}
	switch nftstake.Classify(err) {
	case nftstake.ClassPolicyViolation:
		return http.StatusUnprocessableEntity
	case nftstake.ClassStateConflict:
		return http.StatusConflict
	case nftstake.ClassCollaboratorFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	class := nftstake.Classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("staking operation failed", slog.Any("error", err))
		writeJSON(w, status, errorResponse{Error: "internal error", Class: class.String()})
		return
	}
	if class == nftstake.ClassCollaboratorFailure {
		s.logger.Warn("custody call failed", slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Class: class.String()})
}

type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid request body: trailing data")
	}
	return nil
}
