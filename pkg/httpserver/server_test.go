package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/emission-labs/emission-curve/pkg/cache"
	"github.com/emission-labs/emission-curve/pkg/chart"
	"github.com/emission-labs/emission-curve/pkg/emission"
	"github.com/emission-labs/emission-curve/pkg/types"
)

type staticFetcher struct {
	stat *types.TotalEmission
}

func (f staticFetcher) TotalEmission(context.Context) (*types.TotalEmission, error) {
	return f.stat, nil
}

func newServer(t *testing.T, mutate func(*Config)) (*Server, *cache.StatCache) {
	t.Helper()
	m, err := emission.NewModel(emission.MoneroParams())
	require.NoError(t, err)
	b, err := emission.NewBitcoinModel(emission.DefaultBitcoinParams())
	require.NoError(t, err)
	charts, err := cache.NewChartCache(8)
	require.NoError(t, err)
	stats := cache.NewStatCache(staticFetcher{stat: &types.TotalEmission{
		Atomic:    "18400000000000000000",
		Amount:    18_400_000,
		Ticker:    "XMR",
		UpdatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}, cache.Options{TTL: time.Minute})

	cfg := Config{
		Sampler:             chart.New(m, b),
		Charts:              charts,
		Stats:               stats,
		MaxHeight:           100_000,
		Step:                10_000,
		MaxHeightLimit:      2_000_000,
		ComparisonEnabled:   true,
		ComparisonStart:     300_000,
		ComparisonMaxHeight: 600_000,
		ComparisonStep:      100_000,
		OpenAPI:             []byte("openapi: 3.0.3\n"),
		Page: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("page"))
		}),
		Logger: zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), stats
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestChartsDefaults(t *testing.T) {
	s, _ := newServer(t, nil)
	rec := get(t, s.Handler(), "/api/charts")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("Cache-Control"))

	set := decode[types.ChartSet](t, rec)
	require.Equal(t, "XMR", set.Ticker)
	require.Len(t, set.Supply.Points, 10)
	require.Len(t, set.Reward.Points, 10)
	require.Equal(t, `"`+set.ETag+`"`, rec.Header().Get("ETag"))
}

func TestChartsNotModified(t *testing.T) {
	s, _ := newServer(t, nil)
	first := get(t, s.Handler(), "/api/charts?max_height=50000&step=5000")
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	again := get(t, s.Handler(), "/api/charts?max_height=50000&step=5000", "If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, again.Code)
	require.Empty(t, again.Body.String())
	require.Equal(t, 1, s.cfg.Charts.Len())
}

func TestChartsBadQuery(t *testing.T) {
	s, _ := newServer(t, nil)
	for _, target := range []string{
		"/api/charts?step=0",
		"/api/charts?step=abc",
		"/api/charts?max_height=-1",
		"/api/charts?max_height=2000001",
		"/api/charts/comparison?start_height=700000",
		"/api/charts/comparison?step=0",
		"/api/charts/comparison?max_height=9999999",
	} {
		rec := get(t, s.Handler(), target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestComparison(t *testing.T) {
	s, _ := newServer(t, nil)
	rec := get(t, s.Handler(), "/api/charts/comparison")
	require.Equal(t, http.StatusOK, rec.Code)
	set := decode[types.ChartSet](t, rec)
	require.Equal(t, "BTC", set.Ticker)
	require.Equal(t, uint64(300_000), set.StartAt)
	require.Len(t, set.Supply.Points, 3)

	s, _ = newServer(t, func(c *Config) { c.ComparisonEnabled = false })
	rec = get(t, s.Handler(), "/api/charts/comparison")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReward(t *testing.T) {
	s, _ := newServer(t, nil)

	rec := get(t, s.Handler(), "/api/reward?height=0&supply=0")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[rewardResponse](t, rec)
	require.InDelta(t, 17.59, got.Reward, 0.01)
	require.Equal(t, "current", got.Schedule)
	require.False(t, got.Tail)

	current := decode[rewardResponse](t, get(t, s.Handler(), "/api/reward?height=1009828&supply=15000000"))
	legacy := decode[rewardResponse](t, get(t, s.Handler(), "/api/reward?height=1009828&supply=15000000&schedule=legacy"))
	require.Equal(t, 2*legacy.Reward, current.Reward)

	tail := decode[rewardResponse](t, get(t, s.Handler(), "/api/reward?height=3000000&supply=18446744"))
	require.True(t, tail.Tail)
	require.Equal(t, 0.6, tail.Reward)

	simulated := decode[rewardResponse](t, get(t, s.Handler(), "/api/reward?height=2"))
	require.Greater(t, simulated.Supply, 0.0)

	for _, target := range []string{
		"/api/reward",
		"/api/reward?height=x",
		"/api/reward?height=1&schedule=v2",
		"/api/reward?height=1&supply=-1",
		"/api/reward?height=1&supply=NaN",
		"/api/reward?height=99999999",
	} {
		require.Equal(t, http.StatusBadRequest, get(t, s.Handler(), target).Code, target)
	}
}

func TestSupply(t *testing.T) {
	s, _ := newServer(t, nil)
	rec := get(t, s.Handler(), "/api/supply?height=0")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[types.HeightInfo](t, rec)
	require.Zero(t, info.Supply)
	require.True(t, emission.MoneroParams().Genesis.Equal(info.ExpectedDate))

	info = decode[types.HeightInfo](t, get(t, s.Handler(), "/api/supply?height=1009828"))
	require.Equal(t, 2*info.LegacyReward, info.Reward)

	require.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/supply").Code)
	require.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/supply?height=2000001").Code)
}

func TestTotalStat(t *testing.T) {
	s, stats := newServer(t, nil)
	rec := get(t, s.Handler(), "/api/stats/total")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, err := stats.Update(context.Background())
	require.NoError(t, err)
	rec = get(t, s.Handler(), "/api/stats/total")
	require.Equal(t, http.StatusOK, rec.Code)
	stat := decode[types.TotalEmission](t, rec)
	require.Equal(t, "18400000000000000000", stat.Atomic)
	require.Equal(t, "2024-01-02T03:04:05Z", rec.Header().Get("X-Updated-At"))

	rec = get(t, s.Handler(), "/api/stats/total", "If-None-Match", rec.Header().Get("ETag"))
	require.Equal(t, http.StatusNotModified, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := newServer(t, func(c *Config) {
		c.RatePerMin = 1
		c.Burst = 1
	})
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/supply?height=1").Code)
	rec := get(t, s.Handler(), "/api/supply?height=1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/charts", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuxiliaryRoutes(t *testing.T) {
	s, _ := newServer(t, func(c *Config) { c.GitTag = "v1.2.3" })

	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"v1.2.3"`)

	rec = get(t, s.Handler(), "/openapi.yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "openapi")

	rec = get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s.Handler(), "/")
	require.Equal(t, "page", rec.Body.String())

	rec = get(t, s.Handler(), "/api/charts", "Origin", "https://example.org")
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChartsPointLimit(t *testing.T) {
	s, _ := newServer(t, func(c *Config) { c.MaxPoints = 100 })
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/charts?max_height=100000&step=1000").Code)

	rec := get(t, s.Handler(), "/api/charts?max_height=2000000&step=1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "limit is 100")
	require.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/charts?max_height=100001&step=1000").Code)
	require.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/charts/comparison?start_height=0&max_height=600000&step=10").Code)
	require.Equal(t, 1, s.cfg.Charts.Len())

	s, _ = newServer(t, nil)
	require.Equal(t, uint64(defaultMaxPoints), s.cfg.MaxPoints)
	require.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/charts?max_height=2000000&step=1").Code)
}

func TestSupplyAndRewardAgree(t *testing.T) {
	s, _ := newServer(t, nil)
	for _, h := range []string{"1", "2", "500000", "1009828"} {
		info := decode[types.HeightInfo](t, get(t, s.Handler(), "/api/supply?height="+h))
		reward := decode[rewardResponse](t, get(t, s.Handler(), "/api/reward?height="+h))
		require.Equal(t, reward.Reward, info.Reward, "height %s", h)
		legacy := decode[rewardResponse](t, get(t, s.Handler(), "/api/reward?schedule=legacy&height="+h))
		require.Equal(t, legacy.Reward, info.LegacyReward, "height %s", h)
	}
}

func TestComparisonAtHeightLimit(t *testing.T) {
	s, _ := newServer(t, func(c *Config) { c.MaxHeightLimit = 20_000_000 })
	rec := get(t, s.Handler(), "/api/charts/comparison?start_height=0&max_height=20000000&step=1000000")
	require.Equal(t, http.StatusOK, rec.Code)
	set := decode[types.ChartSet](t, rec)
	require.Len(t, set.Supply.Points, 20)
	for i := 1; i < len(set.Supply.Points); i++ {
		require.Greater(t, set.Supply.Points[i].X, set.Supply.Points[i-1].X)
	}
}
