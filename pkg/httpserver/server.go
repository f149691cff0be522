package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/emission-labs/emission-curve/pkg/cache"
	"github.com/emission-labs/emission-curve/pkg/chart"
	"github.com/emission-labs/emission-curve/pkg/emission"
	"github.com/emission-labs/emission-curve/pkg/metrics"
	"github.com/emission-labs/emission-curve/pkg/ratelimit"
	"github.com/emission-labs/emission-curve/pkg/types"
)

type Config struct {
	Sampler *chart.Sampler
	Charts  *cache.ChartCache
	Stats   *cache.StatCache

	// Defaults used when a chart query omits max_height or step.
	MaxHeight      uint64
	Step           uint64
	MaxHeightLimit uint64
	// MaxPoints caps the points per series a chart query may request.
	MaxPoints uint64

	ComparisonEnabled   bool
	ComparisonStart     uint64
	ComparisonMaxHeight uint64
	ComparisonStep      uint64

	RatePerMin     int
	Burst          int
	CORSOrigins    []string
	TrustedProxies []netip.Prefix

	// Page and OpenAPI are served at / and /openapi.yaml when set.
	Page    http.Handler
	OpenAPI []byte

	GitTag    string
	GitCommit string
	Logger    *zap.Logger
}

const defaultMaxPoints = 10_000

type Server struct {
	cfg     Config
	mux     *http.ServeMux
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxHeightLimit == 0 {
		cfg.MaxHeightLimit = cfg.MaxHeight
	}
	if cfg.MaxPoints == 0 {
		cfg.MaxPoints = defaultMaxPoints
	}
	lim := ratelimit.New(cfg.RatePerMin, cfg.Burst, ratelimit.WithTrustedProxies(cfg.TrustedProxies...))
	s := &Server{cfg: cfg, mux: http.NewServeMux(), limiter: lim, logger: cfg.Logger}
	s.mux.HandleFunc("/healthz", s.healthz)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/api/charts", s.wrap("charts", s.handleCharts))
	s.mux.HandleFunc("/api/charts/comparison", s.wrap("comparison", s.handleComparison))
	s.mux.HandleFunc("/api/reward", s.wrap("reward", s.handleReward))
	s.mux.HandleFunc("/api/supply", s.wrap("supply", s.handleSupply))
	s.mux.HandleFunc("/api/stats/total", s.wrap("stats_total", s.handleTotal))
	if cfg.OpenAPI != nil {
		s.mux.HandleFunc("/openapi.yaml", s.handleOpenAPI)
	}
	if cfg.Page != nil {
		s.mux.Handle("/", cfg.Page)
	}
	return s
}

func (s *Server) Mux() *http.ServeMux { return s.mux }

// Handler returns the mux with CORS applied.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{"If-None-Match"},
		ExposedHeaders: []string{"ETag", "X-Updated-At"},
		MaxAge:         600,
	}).Handler(s.mux)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) wrap(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() { metrics.ReportRequest(route, rec.code) }()
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			rec.Header().Set("Allow", "GET, HEAD")
			http.Error(rec, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.limiter.Allow(r) {
			rec.Header().Set("Retry-After", "1")
			http.Error(rec, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		rec.Header().Set("Content-Type", "application/json; charset=utf-8")
		rec.Header().Set("Cache-Control", "public, max-age=30")
		next(rec, r)
	}
}

func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

func requireUint(r *http.Request, name string) (uint64, error) {
	if r.URL.Query().Get(name) == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	return queryUint(r, name, 0)
}

func (s *Server) checkHeight(name string, h uint64) error {
	if h > s.cfg.MaxHeightLimit {
		return fmt.Errorf("%s %d exceeds limit %d", name, h, s.cfg.MaxHeightLimit)
	}
	return nil
}

func (s *Server) checkPoints(start, maxHeight, step uint64) error {
	if n := chart.PointCount(start, maxHeight, step); n > s.cfg.MaxPoints {
		return fmt.Errorf("query yields %d points per series, limit is %d", n, s.cfg.MaxPoints)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

// notModified answers a matching If-None-Match with 304. It sets the ETag
// header either way.
func notModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	quoted := strconv.Quote(etag)
	w.Header().Set("ETag", quoted)
	if inm := r.Header.Get("If-None-Match"); inm != "" && (inm == quoted || inm == etag) {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func (s *Server) serveChartSet(w http.ResponseWriter, r *http.Request, key cache.ChartKey, compute func() (*types.ChartSet, error)) {
	set, err := s.cfg.Charts.Get(key, compute)
	if err != nil {
		if errors.Is(err, emission.ErrInvalidStep) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("sample chart", zap.Stringer("key", key), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if notModified(w, r, set.ETag) {
		return
	}
	s.writeJSON(w, set)
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	maxHeight, err := queryUint(r, "max_height", s.cfg.MaxHeight)
	if err == nil {
		err = s.checkHeight("max_height", maxHeight)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	step, err := queryUint(r, "step", s.cfg.Step)
	if err != nil || step == 0 {
		http.Error(w, "step must be a positive integer", http.StatusBadRequest)
		return
	}
	if err := s.checkPoints(0, maxHeight, step); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := cache.ChartKey{Curve: cache.PrimaryCurve, MaxHeight: maxHeight, Step: step}
	s.serveChartSet(w, r, key, func() (*types.ChartSet, error) {
		return s.cfg.Sampler.Charts(maxHeight, step)
	})
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.ComparisonEnabled {
		http.Error(w, "comparison curve disabled", http.StatusNotFound)
		return
	}
	start, err := queryUint(r, "start_height", s.cfg.ComparisonStart)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	maxHeight, err := queryUint(r, "max_height", s.cfg.ComparisonMaxHeight)
	if err == nil {
		err = s.checkHeight("max_height", maxHeight)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if start > maxHeight {
		http.Error(w, "start_height must not exceed max_height", http.StatusBadRequest)
		return
	}
	step, err := queryUint(r, "step", s.cfg.ComparisonStep)
	if err != nil || step == 0 {
		http.Error(w, "step must be a positive integer", http.StatusBadRequest)
		return
	}
	if err := s.checkPoints(start, maxHeight, step); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := cache.ChartKey{Curve: cache.ComparisonCurve, Start: start, MaxHeight: maxHeight, Step: step}
	s.serveChartSet(w, r, key, func() (*types.ChartSet, error) {
		return s.cfg.Sampler.ComparisonCharts(start, maxHeight, step)
	})
}

type rewardResponse struct {
	Height   uint64  `json:"height"`
	Supply   float64 `json:"supply"`
	Schedule string  `json:"schedule"`
	Reward   float64 `json:"reward"`
	Tail     bool    `json:"tail_emission"`
	Ticker   string  `json:"ticker"`
}

func (s *Server) handleReward(w http.ResponseWriter, r *http.Request) {
	height, err := requireUint(r, "height")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sched, ok := emission.ParseSchedule(r.URL.Query().Get("schedule"))
	if !ok {
		http.Error(w, "schedule must be current or legacy", http.StatusBadRequest)
		return
	}
	model := s.cfg.Sampler.Model()

	var supply float64
	if v := r.URL.Query().Get("supply"); v != "" {
		supply, err = strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(supply) || math.IsInf(supply, 0) || supply < 0 {
			http.Error(w, "supply must be a non-negative number", http.StatusBadRequest)
			return
		}
	} else {
		// Without an explicit supply, price the block against the simulated
		// supply emitted before it.
		if err := s.checkHeight("height", height); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var before uint64
		if height > 0 {
			before = height - 1
		}
		cp, err := model.SupplyAt(before, emission.Checkpoint{})
		if err != nil {
			s.logger.Error("accumulate supply", zap.Uint64("height", before), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		supply = cp.Supply
	}
	reward := model.Reward(height, supply, sched)
	s.writeJSON(w, rewardResponse{
		Height:   height,
		Supply:   supply,
		Schedule: sched.String(),
		Reward:   reward,
		Tail:     model.IsTail(reward),
		Ticker:   model.Params().Ticker,
	})
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	height, err := requireUint(r, "height")
	if err == nil {
		err = s.checkHeight("height", height)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := s.cfg.Sampler.HeightInfo(height)
	if err != nil {
		s.logger.Error("accumulate supply", zap.Uint64("height", height), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, info)
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Stats == nil {
		http.Error(w, "live stat not configured", http.StatusServiceUnavailable)
		return
	}
	stat, fresh := s.cfg.Stats.Get()
	if stat == nil {
		if err := s.cfg.Stats.LastError(); err != nil {
			s.logger.Debug("live stat unavailable", zap.Error(err))
		}
		w.Header().Set("Retry-After", "30")
		http.Error(w, "live stat unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("X-Updated-At", stat.UpdatedAt.Format(time.RFC3339))
	if !fresh {
		w.Header().Set("Warning", `110 - "stale live stat"`)
	}
	if notModified(w, r, stat.Atomic+"-"+strconv.FormatInt(stat.UpdatedAt.Unix(), 10)) {
		return
	}
	s.writeJSON(w, stat)
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(s.cfg.OpenAPI)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(struct {
		Status    string `json:"status"`
		Time      string `json:"time"`
		GitTag    string `json:"git_tag,omitempty"`
		GitCommit string `json:"git_commit,omitempty"`
	}{"ok", time.Now().UTC().Format(time.RFC3339), s.cfg.GitTag, s.cfg.GitCommit})
}
