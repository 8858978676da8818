/*
Package server exposes a ClaimRegistry over HTTP.

Read endpoints are public. Every state changing endpoint is authenticated: the
caller signs keccak256(abi.encode(method, path, keccak256(body), timestamp))
as an EIP-191 personal message and sends the 65 byte signature hex encoded in
X-Signature together with the unix timestamp in X-Timestamp. The recovered
signer is the account the registry sees as the caller, so a claim always pays
out to the key that signed it and owner operations succeed only for the owner.

Routes:

	GET  /info                 registry, token, owner, root, paused, balance
	GET  /root                 current Merkle root
	GET  /owner                current owner
	GET  /paused               pause flag
	GET  /accounts/{account}   block status and claimed amount
	GET  /blocked              block list
	GET  /events               event log, ?after=<seq>&limit=<n>
	POST /claimable            { account, index, total, proof }
	POST /claim                { index, amount, total, proof }     (signed, rate limited)
	POST /claim-all            { index, total, proof }             (signed, rate limited)
	POST /admin/root           { root }                            (signed)
	POST /admin/blacklist      { account }                         (signed)
	POST /admin/whitelist      { account }                         (signed)
	POST /admin/pause                                              (signed)
	POST /admin/unpause                                            (signed)
	POST /admin/withdraw       { amount }                          (signed)
	POST /admin/owner          { newOwner }                        (signed)
	GET  /healthz
	GET  /metrics

Amounts are accepted as 0x-prefixed hex or decimal strings and returned as hex.
*/
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/metrics"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/registry"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderRequestID = "X-Request-ID"

	maxBodyBytes = 1 << 20
)

// Config controls the HTTP surface of the registry.
type Config struct {
	Port int
	// ClaimRate is the sustained claims per second allowed per caller.
	ClaimRate  float64
	ClaimBurst int
	// SignatureMaxAge bounds how far X-Timestamp may drift from the server clock.
	SignatureMaxAge time.Duration
}

// Server handles HTTP requests for a claim registry
type Server struct {
	registry *registry.ClaimRegistry
	store    persistence.IRegistryPersistence
	metrics  *metrics.DistributorMetrics
	logger   *zap.Logger

	limiter *callerLimiter
	replays *replayGuard
	maxAge  time.Duration
	now     func() time.Time

	httpServer *http.Server
	done       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new server instance. metrics may be nil.
func NewServer(reg *registry.ClaimRegistry, store persistence.IRegistryPersistence, m *metrics.DistributorMetrics, cfg Config, logger *zap.Logger) *Server {
	s := &Server{
		registry: reg,
		store:    store,
		metrics:  m,
		logger:   logger,
		limiter:  newCallerLimiter(cfg.ClaimRate, cfg.ClaimBurst),
		replays:  newReplayGuard(),
		maxAge:   cfg.SignatureMaxAge,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	m.SetPaused(reg.Paused())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Get("/info", s.handleInfo)
	r.Get("/root", s.handleRoot)
	r.Get("/owner", s.handleOwner)
	r.Get("/paused", s.handlePaused)
	r.Get("/accounts/{account}", s.handleAccount)
	r.Get("/blocked", s.handleBlocked)
	r.Get("/events", s.handleEvents)
	r.Post("/claimable", s.handleClaimable)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.With(s.rateLimit).Post("/claim", s.handleClaim)
		r.With(s.rateLimit).Post("/claim-all", s.handleClaimAll)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/root", s.handleUpdateRoot)
			r.Post("/blacklist", s.handleBlacklist)
			r.Post("/whitelist", s.handleWhitelist)
			r.Post("/pause", s.handlePause)
			r.Post("/unpause", s.handleUnpause)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/owner", s.handleTransferOwnership)
		})
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.sweep(s.done)
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "registry", s.registry.Address().Hex(), "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "registry", s.registry.Address().Hex(), "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
