package loadtest_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"

	"composer/internal/domain"
	"composer/internal/gateway/adapter/authclient"
	"composer/internal/gateway/adapter/inmem"
	"composer/internal/gateway/handler"
	"composer/internal/gateway/middleware"
	"composer/internal/gateway/uploader"
	"composer/internal/platform/server"
	"composer/internal/platform/telemetry"
	"composer/internal/testutil"
)

// testEnv holds all the infrastructure needed for a load test.
type testEnv struct {
	baseURL  string
	token    string
	cancel   context.CancelFunc
	authSrv  *httptest.Server
	convoSrv *httptest.Server
	upSrv    *httptest.Server
}

type rlConfig struct {
	perIPRate  float64
	perIPBurst int
}

func setupTestEnv(t *testing.T, rl rlConfig) *testEnv {
	t.Helper()

	env := &testEnv{
		authSrv:  httptest.NewServer(testutil.MockAuthHandler()),
		convoSrv: httptest.NewServer(testutil.MockPeerHandler("conversation")),
		upSrv:    httptest.NewServer(testutil.MockPeerHandler("upload")),
	}
	t.Cleanup(func() {
		env.authSrv.Close()
		env.convoSrv.Close()
		env.upSrv.Close()
	})

	identity := domain.Identity{UserID: "loadtest-user", Username: "loadtest"}
	env.token = testutil.IssueTestToken(t, identity, 30*time.Minute)

	addr := freeAddr(t)
	ds := testutil.NewDownstreamClient(t, env.authSrv.URL, env.convoSrv.URL, env.upSrv.URL, "load-key")
	validator := authclient.New(ds)

	store := inmem.NewUploadStore(1024, nil)
	tracker := uploader.New(store, ds, 4, 64, 5*time.Second, nil)
	t.Cleanup(tracker.Close)

	rateLimiter := inmem.NewRateLimiter(rl.perIPRate, rl.perIPBurst, time.Now)

	exemptPaths := []string{"/api/login", "/api/register", "/api/auth/google", "/healthz", "/readyz", "/metrics"}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	shutdown, _ := telemetry.Setup(context.Background(), "composer-loadtest")
	t.Cleanup(func() { shutdown(context.Background()) })

	routes := handler.New(ds, tracker).Routes()
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.Handle("/", middleware.Chain(
		routes,
		middleware.CorrelationID,
		middleware.Logging(logger),
		middleware.Recovery,
		middleware.CORS,
		middleware.MaxBodySize(1<<20),
		middleware.RateLimit(rateLimiter, nil),
		middleware.Auth(validator, exemptPaths, nil),
	))

	srv := server.New(addr, mux)
	ctx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	t.Cleanup(cancel)

	go srv.Run(ctx)

	env.baseURL = "http://" + addr
	waitForReady(t, env.baseURL+"/healthz")

	return env
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func waitForReady(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server did not become ready at %s", url)
}

func loadtestDuration() time.Duration {
	if d := os.Getenv("LOADTEST_DURATION"); d != "" {
		dur, err := time.ParseDuration(d)
		if err == nil {
			return dur
		}
	}
	if testing.Short() {
		return 2 * time.Second
	}
	return 5 * time.Second
}

func loadtestRate() int {
	if r := os.Getenv("LOADTEST_RATE"); r != "" {
		rate, err := strconv.Atoi(r)
		if err == nil {
			return rate
		}
	}
	if testing.Short() {
		return 50
	}
	return 100
}

func printReport(t *testing.T, name string, metrics *vegeta.Metrics) {
	t.Helper()
	t.Logf("\n=== %s ===", name)
	t.Logf("  Requests:    %d", metrics.Requests)
	t.Logf("  Rate:        %.1f req/s", metrics.Rate)
	t.Logf("  Throughput:  %.1f req/s", metrics.Throughput)
	t.Logf("  Duration:    %s", metrics.Duration)
	t.Logf("  Latencies:")
	t.Logf("    Mean:    %s", metrics.Latencies.Mean)
	t.Logf("    P50:     %s", metrics.Latencies.P50)
	t.Logf("    P95:     %s", metrics.Latencies.P95)
	t.Logf("    P99:     %s", metrics.Latencies.P99)
	t.Logf("    Max:     %s", metrics.Latencies.Max)
	t.Logf("  Status Codes:")
	for code, count := range metrics.StatusCodes {
		t.Logf("    %s: %d", code, count)
	}
	if len(metrics.Errors) > 0 {
		t.Logf("  Errors (first 5):")
		for i, e := range metrics.Errors {
			if i >= 5 {
				break
			}
			t.Logf("    %s", e)
		}
	}
	t.Logf("  Success:     %.1f%%", metrics.Success*100)
}

func TestBaselineAuthenticated(t *testing.T) {
	env := setupTestEnv(t, rlConfig{perIPRate: 10000, perIPBurst: 10000})

	rate := vegeta.Rate{Freq: loadtestRate(), Per: time.Second}
	duration := loadtestDuration()

	targeter := vegeta.NewStaticTargeter(vegeta.Target{
		Method: http.MethodGet,
		URL:    env.baseURL + "/api/convos?user_id=loadtest-user",
		Header: http.Header{
			"Authorization": []string{"Bearer " + env.token},
		},
	})

	attacker := vegeta.NewAttacker()
	var metrics vegeta.Metrics
	for res := range attacker.Attack(targeter, rate, duration, "baseline") {
		metrics.Add(res)
	}
	metrics.Close()

	printReport(t, "Baseline Authenticated", &metrics)

	if metrics.Success < 0.99 {
		t.Errorf("expected >99%% success rate, got %.1f%%", metrics.Success*100)
	}
	if metrics.Latencies.P99 > 200*time.Millisecond {
		t.Errorf("P99 latency too high: %s", metrics.Latencies.P99)
	}
}

func TestRateLimitBehavior(t *testing.T) {
	// Low per-IP rate+burst so the attack rate triggers rate limiting.
	env := setupTestEnv(t, rlConfig{perIPRate: 5, perIPBurst: 10})

	rate := vegeta.Rate{Freq: loadtestRate(), Per: time.Second}
	duration := loadtestDuration()

	targeter := vegeta.NewStaticTargeter(vegeta.Target{
		Method: http.MethodGet,
		URL:    env.baseURL + "/api/convos?user_id=loadtest-user",
		Header: http.Header{
			"Authorization": []string{"Bearer " + env.token},
		},
	})

	attacker := vegeta.NewAttacker()
	var metrics vegeta.Metrics
	for res := range attacker.Attack(targeter, rate, duration, "rate-limit") {
		metrics.Add(res)
	}
	metrics.Close()

	printReport(t, "Rate Limit Behavior", &metrics)

	// Should see a mix of 200s and 429s
	if metrics.StatusCodes["200"] == 0 {
		t.Error("expected some 200 responses (initial burst)")
	}
	if metrics.StatusCodes["429"] == 0 {
		t.Error("expected some 429 responses (rate limited)")
	}
}

func TestInvalidTokens(t *testing.T) {
	env := setupTestEnv(t, rlConfig{perIPRate: 10000, perIPBurst: 10000})

	expiredToken := testutil.IssueTestToken(t,
		domain.Identity{UserID: "expired-user", Username: "expired"}, -1*time.Minute)

	rate := vegeta.Rate{Freq: loadtestRate(), Per: time.Second}
	duration := loadtestDuration()

	targeter := vegeta.NewStaticTargeter(vegeta.Target{
		Method: http.MethodGet,
		URL:    env.baseURL + "/api/convos?user_id=expired-user",
		Header: http.Header{
			"Authorization": []string{"Bearer " + expiredToken},
		},
	})

	attacker := vegeta.NewAttacker()
	var metrics vegeta.Metrics
	for res := range attacker.Attack(targeter, rate, duration, "expired") {
		metrics.Add(res)
	}
	metrics.Close()

	printReport(t, "Expired Tokens", &metrics)

	if metrics.StatusCodes["401"] == 0 {
		t.Error("expected 401 responses for expired tokens")
	}
	if metrics.Success > 0.01 {
		t.Errorf("expected ~0%% success for expired tokens, got %.1f%%", metrics.Success*100)
	}
}

func TestMixedTraffic(t *testing.T) {
	env := setupTestEnv(t, rlConfig{perIPRate: 10000, perIPBurst: 10000})

	invalidToken := "invalid.token.here"

	// 70% listings, 20% file listings, 10% invalid tokens
	targets := make([]vegeta.Target, 10)
	for i := range 7 {
		targets[i] = vegeta.Target{
			Method: http.MethodGet,
			URL:    env.baseURL + "/api/convos?user_id=loadtest-user",
			Header: http.Header{
				"Authorization": []string{"Bearer " + env.token},
			},
		}
	}
	for i := 7; i < 9; i++ {
		targets[i] = vegeta.Target{
			Method: http.MethodGet,
			URL:    env.baseURL + "/api/files?user_id=loadtest-user",
			Header: http.Header{
				"Authorization": []string{"Bearer " + env.token},
			},
		}
	}
	targets[9] = vegeta.Target{
		Method: http.MethodGet,
		URL:    env.baseURL + "/api/convos?user_id=loadtest-user",
		Header: http.Header{
			"Authorization": []string{"Bearer " + invalidToken},
		},
	}

	targeter := vegeta.NewStaticTargeter(targets...)

	rate := vegeta.Rate{Freq: loadtestRate(), Per: time.Second}
	duration := loadtestDuration()

	attacker := vegeta.NewAttacker()
	var metrics vegeta.Metrics
	for res := range attacker.Attack(targeter, rate, duration, "mixed") {
		metrics.Add(res)
	}
	metrics.Close()

	printReport(t, "Mixed Traffic (90% valid, 10% invalid)", &metrics)

	if metrics.StatusCodes["200"] == 0 {
		t.Error("expected some 200 responses")
	}
	if metrics.StatusCodes["401"] == 0 {
		t.Error("expected some 401 responses from invalid tokens")
	}

	total := float64(metrics.Requests)
	successRate := float64(metrics.StatusCodes["200"]) / total
	if successRate < 0.80 {
		t.Errorf("expected >80%% success rate, got %.1f%%", successRate*100)
	}
}
