package bootstrap

import (
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idgen_server/config"
	"idgen_server/infra/middleware"
	"idgen_server/internal/stream"
	"idgen_server/pkg/logger"
	"idgen_server/pkg/snowflake"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func testConfig() *config.Config {
	sf := snowflake.DefaultConfig()
	return &config.Config{
		Port:                   "8080",
		Environment:            "test",
		InstanceID:             "test-host",
		LogLevel:               "error",
		LogBackend:             "none",
		SnowflakeEpoch:         sf.Epoch,
		SnowflakeNodeIDBits:    int(sf.NodeIDBits),
		SnowflakeSequenceBits:  int(sf.SequenceBits),
		SnowflakeNodeID:        sf.NodeID,
		SnowflakeMaxBackwardMs: sf.MaxClockBackwardMs,
		SnowflakePolicy:        "tolerant",
		NodeLeaseEnabled:       true,
		NodeLeaseTTL:           30 * time.Second,
		JWTSecret:              "test-secret",
		EncryptionKey:          "test-encryption-key",
		MaxBatchSize:           100,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*fiber.App, *Dependencies) {
	t.Helper()
	logger.Init(logger.Config{Level: logger.LevelError, Backend: logger.BackendNone})

	deps, cleanup, err := NewDependencies(cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return NewApp(cfg, deps), deps
}

func do(t *testing.T, app *fiber.App, method, path, body string, header ...string) (*nethttp.Response, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return resp, env
}

func TestAPI_IDs(t *testing.T) {
	app, _ := newTestApp(t, testConfig())

	resp, env := do(t, app, fiber.MethodGet, "/api/v1/ids/next", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, env.Success)
	assert.Equal(t, "no-cache, no-store, must-revalidate", resp.Header.Get(fiber.HeaderCacheControl))

	var issued struct {
		ID     int64  `json:"id"`
		IDStr  string `json:"id_str"`
		NodeID int64  `json:"node_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &issued))
	assert.Equal(t, int64(1), issued.NodeID)
	assert.NotZero(t, issued.ID)

	resp, env = do(t, app, fiber.MethodGet, "/api/v1/ids/"+issued.IDStr+"/decode", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderCacheControl), "public")
	var parts snowflake.Parts
	require.NoError(t, json.Unmarshal(env.Data, &parts))
	assert.Equal(t, int64(1), parts.NodeID)

	resp, env = do(t, app, fiber.MethodGet, "/api/v1/ids/next?node=abc", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)

	resp, _ = do(t, app, fiber.MethodGet, "/api/v1/ids/next?node=1024", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, app, fiber.MethodGet, "/api/v1/ids/-3/decode", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Batch(t *testing.T) {
	app, _ := newTestApp(t, testConfig())

	resp, env := do(t, app, fiber.MethodPost, "/api/v1/ids/batch", `{"node": 0, "count": 5}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var batch struct {
		NodeID int64   `json:"node_id"`
		IDs    []int64 `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	assert.Equal(t, int64(0), batch.NodeID)
	require.Len(t, batch.IDs, 5)
	for i := 1; i < len(batch.IDs); i++ {
		assert.Greater(t, batch.IDs[i], batch.IDs[i-1])
	}

	for _, body := range []string{`{"count": 0}`, `{"count": 101}`, `{"node": 5000, "count": 1}`} {
		resp, env = do(t, app, fiber.MethodPost, "/api/v1/ids/batch", body)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, "VALIDATION_FAILED", env.Error.Code, body)
	}

	resp, _ = do(t, app, fiber.MethodPost, "/api/v1/ids/batch", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Opaque(t *testing.T) {
	app, _ := newTestApp(t, testConfig())

	resp, env := do(t, app, fiber.MethodGet, "/api/v1/ids/123456789/opaque", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.Token)

	resp, env = do(t, app, fiber.MethodGet, "/api/v1/opaque/"+out.Token, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var parts snowflake.Parts
	require.NoError(t, json.Unmarshal(env.Data, &parts))
	assert.Equal(t, int64(123456789), parts.ID)

	resp, _ = do(t, app, fiber.MethodGet, "/api/v1/opaque/garbage", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GeneratorAdmin(t *testing.T) {
	cfg := testConfig()
	app, _ := newTestApp(t, cfg)

	do(t, app, fiber.MethodGet, "/api/v1/ids/next?node=9", "")

	resp, env := do(t, app, fiber.MethodGet, "/api/v1/generators", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var infos []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, float64(9), infos[0]["node_id"])

	resp, _ = do(t, app, fiber.MethodDelete, "/api/v1/generators/9", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	userToken, err := middleware.IssueToken(cfg.JWTSecret, "reader", "user", time.Hour)
	require.NoError(t, err)
	resp, _ = do(t, app, fiber.MethodDelete, "/api/v1/generators/9", "", fiber.HeaderAuthorization, "Bearer "+userToken)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	adminToken, err := middleware.IssueToken(cfg.JWTSecret, "ops", middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	resp, _ = do(t, app, fiber.MethodDelete, "/api/v1/generators/9", "", fiber.HeaderAuthorization, "Bearer "+adminToken)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, app, fiber.MethodDelete, "/api/v1/generators/9", "", fiber.HeaderAuthorization, "Bearer "+adminToken)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, env = do(t, app, fiber.MethodGet, "/api/v1/metrics", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var snap struct {
		Issued int64 `json:"issued"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, int64(1), snap.Issued)
}

func TestAPI_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMin = 2
	app, _ := newTestApp(t, cfg)

	for i := 0; i < 2; i++ {
		resp, _ := do(t, app, fiber.MethodGet, "/api/v1/ids/next", "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	}

	resp, env := do(t, app, fiber.MethodGet, "/api/v1/ids/next", "")
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))

	// Health is outside the limited group.
	resp, _ = do(t, app, fiber.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPI_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	logger.Init(logger.Config{Level: logger.LevelError, Backend: logger.BackendNone})
	deps, cleanup, err := NewDependencies(cfg)
	require.NoError(t, err)
	app := NewApp(cfg, deps)

	require.True(t, mr.Exists("idgen:lease:1"))
	assert.Equal(t, int64(1), deps.Lease.NodeID())

	// A second instance cannot take the same node id.
	other := *cfg
	other.InstanceID = "other-host"
	_, _, err = NewDependencies(&other)
	require.Error(t, err)

	resp, _ := do(t, app, fiber.MethodGet, "/ready", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = do(t, app, fiber.MethodGet, "/api/v1/ids/next", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, mr.Exists("idgen:generator:1"))

	resp, env := do(t, app, fiber.MethodGet, "/api/v1/generators/fleet", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var fleet []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &fleet))
	require.Len(t, fleet, 1)
	assert.Equal(t, "test-host", fleet[0]["instance"])

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.Eventually(t, func() bool {
		n, err := client.XLen(context.Background(), stream.StreamGeneratorEvents).Result()
		return err == nil && n >= 1
	}, 5*time.Second, 20*time.Millisecond)

	token, err := issueAndRevoke(t, app, cfg)
	require.NoError(t, err)
	resp, _ = do(t, app, fiber.MethodGet, "/api/v1/auth/me", "", fiber.HeaderAuthorization, "Bearer "+token)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	cleanup()
	assert.False(t, mr.Exists("idgen:lease:1"))
	assert.False(t, mr.Exists("idgen:generator:1"))
}

func issueAndRevoke(t *testing.T, app *fiber.App, cfg *config.Config) (string, error) {
	t.Helper()
	token, err := middleware.IssueToken(cfg.JWTSecret, "ops", middleware.RoleAdmin, time.Hour)
	if err != nil {
		return "", err
	}
	resp, _ := do(t, app, fiber.MethodGet, "/api/v1/auth/me", "", fiber.HeaderAuthorization, "Bearer "+token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = do(t, app, fiber.MethodPost, "/api/v1/auth/revoke", "", fiber.HeaderAuthorization, "Bearer "+token)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	return token, nil
}

func TestNewWorker_RequiresRedis(t *testing.T) {
	_, _, err := NewWorker(testConfig())
	assert.ErrorIs(t, err, ErrWorkerNeedsRedis)
}

func TestWorker_AuditsEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	w := newWorker(client, "auditor-1")
	done := make(chan error, 1)
	go func() { done <- w.Start() }()

	producer := stream.NewProducer(stream.NewRedisStream(client, eventGroup), "host-a")
	require.Eventually(t, func() bool {
		return client.Exists(context.Background(), stream.StreamGeneratorEvents).Val() == 1
	}, 5*time.Second, 10*time.Millisecond)
	_, err := producer.PublishGeneratorCreated(context.Background(), 4, "41/10/12")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return w.Auditor().Owners()[4] == "host-a"
	}, 10*time.Second, 20*time.Millisecond)

	other := stream.NewProducer(stream.NewRedisStream(client, eventGroup), "host-b")
	_, err = other.PublishGeneratorCreated(context.Background(), 4, "41/10/12")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(w.Auditor().Conflicts()) == 1
	}, 10*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		n, err := w.Pending(context.Background())
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)

	w.Stop()
	require.NoError(t, <-done)
}
