package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

type ctxKey int

const (
	callerKey ctxKey = iota
	requestIDKey
)

// callerFrom returns the authenticated caller stored by authenticate.
func callerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(callerKey).(common.Address)
	return caller, ok
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID propagates a client supplied X-Request-ID or assigns a new one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		s.metrics.ObserveRequest(route, r.Method, recorder.status, s.now().Sub(start))
		s.logger.Sugar().Debugw("Handled request",
			"request_id", requestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
		)
	})
}

// authenticate recovers the caller from the request signature headers and
// restores the body for the handler.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		sigHex := r.Header.Get(HeaderSignature)
		tsRaw := r.Header.Get(HeaderTimestamp)
		if sigHex == "" || tsRaw == "" {
			writeError(w, http.StatusUnauthorized, "missing request signature")
			return
		}
		sig, err := hexutil.Decode(sigHex)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "malformed request signature")
			return
		}
		ts, err := strconv.ParseInt(tsRaw, 10, 64)
		if err != nil || ts < 0 {
			writeError(w, http.StatusUnauthorized, "malformed request timestamp")
			return
		}
		now := s.now()
		age := now.Sub(time.Unix(ts, 0))
		if age > s.maxAge || age < -s.maxAge {
			writeError(w, http.StatusUnauthorized, "request signature expired")
			return
		}

		caller, err := util.RecoverRequestSigner(sig, r.Method, r.URL.Path, body, uint64(ts))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid request signature")
			return
		}
		digest := crypto.Keccak256Hash(caller.Bytes(), []byte(r.Method), []byte(r.URL.Path), body, []byte(strconv.FormatInt(ts, 10)))
		if !s.replays.observe(digest, now, s.maxAge) {
			writeError(w, http.StatusUnauthorized, "request signature already used")
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, caller)))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := callerFrom(r.Context())
		if !s.limiter.allow(caller, s.now()) {
			s.metrics.IncRateLimited()
			writeError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sweepInterval is how often idle limiters and expired replay digests are dropped.
const sweepInterval = time.Minute

// sweep runs until done is closed.
func (s *Server) sweep(done <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			now := s.now()
			limiters := s.limiter.sweep(now)
			digests := s.replays.prune(now, s.maxAge)
			if limiters > 0 || digests > 0 {
				s.logger.Sugar().Debugw("Swept request state", "limiters", limiters, "digests", digests)
			}
		}
	}
}

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// callerLimiter keeps one token bucket per authenticated caller. Buckets idle
// long enough to have refilled are evicted; a fresh bucket behaves the same.
type callerLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	buckets map[common.Address]*callerBucket
}

func newCallerLimiter(perSecond float64, burst int) *callerLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	idle := time.Duration(float64(burst) / perSecond * float64(time.Second))
	if idle < sweepInterval {
		idle = sweepInterval
	}
	return &callerLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
		buckets: make(map[common.Address]*callerBucket),
	}
}

func (l *callerLimiter) allow(caller common.Address, now time.Time) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[caller]
	if !ok {
		bucket = &callerBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[caller] = bucket
	}
	bucket.lastSeen = now
	l.mu.Unlock()
	return bucket.limiter.Allow()
}

// sweep evicts buckets not used within the idle period and returns how many.
func (l *callerLimiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for caller, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > l.idle {
			delete(l.buckets, caller)
			evicted++
		}
	}
	return evicted
}

// replayGuard remembers signed request digests for as long as their timestamp
// is acceptable, so each signed request is executed at most once. Digests
// cover the signed content rather than the signature bytes, which are
// malleable.
type replayGuard struct {
	mu   sync.Mutex
	seen map[common.Hash]time.Time
}

func newReplayGuard() *replayGuard {
	return &replayGuard{seen: make(map[common.Hash]time.Time)}
}

// observe records digest and reports whether it was new. A digest older than
// twice the window counts as new; prune drops such entries in bulk.
func (g *replayGuard) observe(digest common.Hash, now time.Time, window time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if at, dup := g.seen[digest]; dup && now.Sub(at) <= 2*window {
		return false
	}
	g.seen[digest] = now
	return true
}

// prune drops expired digests and returns how many.
func (g *replayGuard) prune(now time.Time, window time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	pruned := 0
	for d, at := range g.seen {
		if now.Sub(at) > 2*window {
			delete(g.seen, d)
			pruned++
		}
	}
	return pruned
}
