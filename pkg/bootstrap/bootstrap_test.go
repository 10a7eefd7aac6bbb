package bootstrap

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shabazpatel/acp-infra/pkg/acphttp"
	"github.com/shabazpatel/acp-infra/pkg/audit"
	"github.com/shabazpatel/acp-infra/pkg/auth"
	"github.com/shabazpatel/acp-infra/pkg/config"
	"github.com/shabazpatel/acp-infra/pkg/idempotency"
	"github.com/shabazpatel/acp-infra/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("seller", "")
	require.NoError(t, err)
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func TestIdempotencyStore_Memory(t *testing.T) {
	d := New(testConfig(t), logger.Nop())

	store, err := d.IdempotencyStore(context.Background())

	require.NoError(t, err)
	assert.IsType(t, &idempotency.MemoryStore{}, store)
}

func TestIdempotencyStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Backends.Idempotency = BackendRedis
	cfg.Redis.Addr = mr.Addr()
	d := New(cfg, logger.Nop())
	t.Cleanup(func() { d.Close(context.Background()) })

	store, err := d.IdempotencyStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &idempotency.RedisStore{}, store)

	// A second call reuses the same client.
	c1, err := d.Redis(context.Background())
	require.NoError(t, err)
	c2, err := d.Redis(context.Background())
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Redis.Addr = addr
	d := New(cfg, logger.Nop())

	_, err := d.Redis(context.Background())
	assert.Error(t, err)
}

func TestAuditSink_Memory(t *testing.T) {
	d := New(testConfig(t), logger.Nop())

	sink, err := d.AuditSink(context.Background())

	require.NoError(t, err)
	assert.IsType(t, &audit.MemorySink{}, sink)
}

func TestAuthenticator_FromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Protocol.SupportedAPIVersions = []string{"2026-01-30", "2026-04-01"}
	cfg.Protocol.BearerTokens = []string{"secret-token"}
	d := New(cfg, logger.Nop())
	a := d.Authenticator()

	h := http.Header{}
	h.Set(auth.HeaderAPIVersion, "2026-04-01")
	h.Set(auth.HeaderAuthorization, "Bearer secret-token")
	assert.NoError(t, a.Authenticate(h, nil))

	h.Set(auth.HeaderAuthorization, "Bearer other")
	assert.Error(t, a.Authenticate(h, nil))
}

func TestPipeline_Memory(t *testing.T) {
	d := New(testConfig(t), logger.Nop())

	p, err := d.Pipeline(context.Background(), "seller")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	p.Do(rr, req, acphttp.Action{
		Public: true,
		Exec: func(context.Context) (int, any, string, error) {
			return http.StatusOK, map[string]string{"pong": "ok"}, "", nil
		},
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"pong":"ok"}`, rr.Body.String())
}

func TestClose_RunsNewestFirst(t *testing.T) {
	d := New(testConfig(t), logger.Nop())
	var order []string
	d.OnClose(func(context.Context) error { order = append(order, "first"); return nil })
	d.OnClose(func(context.Context) error { order = append(order, "second"); return assert.AnError })

	d.Close(context.Background())

	assert.Equal(t, []string{"second", "first"}, order)
}

func TestServe_StopsOnCancel(t *testing.T) {
	d := New(testConfig(t), logger.Nop())

	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	ran := make(chan struct{})
	runner := func(ctx context.Context) error {
		close(ran)
		<-ctx.Done()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.serve(ctx, httpLis, grpcLis, handler, runner) }()

	url := "http://" + httpLis.Addr().String() + "/"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	<-ran

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_ListenError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HTTPAddr = "not-an-address"
	d := New(cfg, logger.Nop())

	err := d.Serve(context.Background(), http.NotFoundHandler())

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to listen"))
}
