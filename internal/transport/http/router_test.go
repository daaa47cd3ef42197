package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempiemail/backend/internal/config"
	"tempiemail/backend/internal/health"
	"tempiemail/backend/internal/middleware"
	"tempiemail/backend/internal/monitoring"
	"tempiemail/backend/internal/security"
	"tempiemail/backend/internal/service"
	"tempiemail/backend/internal/storage/memory"
	"tempiemail/backend/internal/websocket"
)

const testAddress = "swift-fox482@disposable.email"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	registry *memory.Registry
	delivery *service.DeliveryService
	limiter  *middleware.IPRateLimiter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			Domains:        []string{"disposable.email"},
			AddressTTL:     48 * time.Hour,
			MessageTTL:     24 * time.Hour,
			Retention:      100,
			MaxExtendHours: 168,
		},
		Provision: config.ProvisionConfig{PerMinute: 60, Burst: 3, MaxBatch: 5},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
	}

	registry := memory.NewRegistry(cfg.Mailbox.AddressTTL)
	store := memory.NewStore(registry, cfg.Mailbox.MessageTTL, cfg.Mailbox.Retention)
	filter := security.NewFilter(security.Config{
		MaxMessageBytes: 1 << 20,
		MaxPerHour:      50,
		MaxLinks:        10,
		BlockedDomains:  []string{"spam.com"},
	}, nil)
	generator, err := service.NewGenerator(cfg.Mailbox.Domains)
	require.NoError(t, err)

	limiter := middleware.NewIPRateLimiter(cfg.Provision.PerMinute, cfg.Provision.Burst, nil)
	t.Cleanup(limiter.Close)

	hub := websocket.NewHub(nil, nil, nil)
	router := NewRouter(RouterDependencies{
		Config:         cfg,
		MailboxService: service.NewMailboxService(registry, store, generator, cfg, nil),
		MessageService: service.NewMessageService(store, nil),
		Filter:         filter,
		WebSocketHub:   hub,
		Health:         health.NewHealthChecker(nil),
		Metrics:        monitoring.NewMetrics(),
		RateLimiter:    limiter,
	})

	return &testServer{
		router:   router,
		registry: registry,
		delivery: service.NewDeliveryService(registry, store, filter, hub, nil),
		limiter:  limiter,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

// decodeData 把响应 data 字段解析到 out
func decodeData(t *testing.T, resp Response, out any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func (s *testServer) deliver(t *testing.T, raw string) {
	t.Helper()
	verdict, err := s.delivery.Deliver("a@b.com", testAddress, []byte(raw))
	require.NoError(t, err)
	require.True(t, verdict.Admitted, verdict.String())
}

func TestRouter_Generate(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodPost, "/api/addresses/generate", `{"pattern":"color-animal"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var out addressResponse
	decodeData(t, resp, &out)
	assert.True(t, strings.HasSuffix(out.EmailAddress, "@disposable.email"))
	assert.Equal(t, 48*time.Hour, out.Metadata.ExpiresAt.Sub(out.Metadata.CreatedAt))
	assert.True(t, s.registry.IsLive(out.EmailAddress))

	t.Run("空请求体", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/api/addresses/generate", "")
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("超过限流返回 429", func(t *testing.T) {
		w, resp := s.do(t, http.MethodPost, "/api/addresses/generate", "")
		assert.Equal(t, http.StatusCreated, w.Code)

		w, resp = s.do(t, http.MethodPost, "/api/addresses/generate", "")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, CodeTooManyRequests, resp.Code)
	})
}

func TestRouter_GenerateMultiple(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodPost, "/api/addresses/generate-multiple", `{"count":50}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var out addressListResponse
	decodeData(t, resp, &out)
	assert.Equal(t, 5, out.Count)
}

func TestRouter_ReadDeleteScenario(t *testing.T) {
	s := newTestServer(t)
	_, err := s.registry.Create(testAddress)
	require.NoError(t, err)
	s.deliver(t, "Subject: Hi\n\nHello")

	w, resp := s.do(t, http.MethodGet, "/api/emails/"+testAddress, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list emailListResponse
	decodeData(t, resp, &list)
	require.Equal(t, 1, list.Count)
	assert.False(t, list.Emails[0].IsRead)
	id := list.Emails[0].ID

	w, resp = s.do(t, http.MethodGet, "/api/emails/"+testAddress+"/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var message struct {
		Subject string `json:"subject"`
		Read    bool   `json:"read"`
	}
	decodeData(t, resp, &message)
	assert.Equal(t, "Hi", message.Subject)
	assert.True(t, message.Read)

	w, _ = s.do(t, http.MethodDelete, "/api/emails/"+testAddress+"/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = s.do(t, http.MethodGet, "/api/emails/"+testAddress+"/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, MsgMessageNotFound, resp.Msg)
}

func TestRouter_ClearInbox(t *testing.T) {
	s := newTestServer(t)
	_, err := s.registry.Create(testAddress)
	require.NoError(t, err)
	s.deliver(t, "Subject: One\n\nfirst")
	s.deliver(t, "Subject: Two\n\nsecond")

	w, resp := s.do(t, http.MethodDelete, "/api/emails/"+testAddress, "")
	require.Equal(t, http.StatusOK, w.Code)
	var cleared clearResponse
	decodeData(t, resp, &cleared)
	assert.Equal(t, 2, cleared.Deleted)

	w, resp = s.do(t, http.MethodGet, "/api/emails/"+testAddress, "")
	require.Equal(t, http.StatusOK, w.Code, "the address survives clearing")
	var list emailListResponse
	decodeData(t, resp, &list)
	assert.Zero(t, list.Count)

	w, _ = s.do(t, http.MethodDelete, "/api/emails/unknown@disposable.email", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SearchAndMarkRead(t *testing.T) {
	s := newTestServer(t)
	_, err := s.registry.Create(testAddress)
	require.NoError(t, err)
	s.deliver(t, "Subject: Invoice\n\nplease pay")
	s.deliver(t, "Subject: Hello\n\nhi there")

	w, resp := s.do(t, http.MethodGet, "/api/emails/"+testAddress+"/search?q=invoice", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list emailListResponse
	decodeData(t, resp, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Invoice", list.Emails[0].Subject)

	w, _ = s.do(t, http.MethodPatch, "/api/emails/"+testAddress+"/"+list.Emails[0].ID+"/read", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPatch, "/api/emails/"+testAddress+"/missing/read", "")
	assert.Equal(t, http.StatusOK, w.Code, "marking a missing message is a no-op")
}

func TestRouter_AddressLifecycle(t *testing.T) {
	s := newTestServer(t)
	rec, err := s.registry.Create(testAddress)
	require.NoError(t, err)

	w, resp := s.do(t, http.MethodGet, "/api/addresses/"+testAddress, "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail service.AddressDetail
	decodeData(t, resp, &detail)
	assert.True(t, detail.IsLive)
	assert.Empty(t, detail.Emails)

	w, resp = s.do(t, http.MethodPatch, "/api/addresses/"+testAddress+"/extend", "")
	require.Equal(t, http.StatusOK, w.Code)
	var extended extendResponse
	decodeData(t, resp, &extended)
	assert.True(t, rec.ExpiresAt.Add(24*time.Hour).Equal(extended.ExpiresAt))

	w, _ = s.do(t, http.MethodPatch, "/api/addresses/"+testAddress+"/extend", `{"hours":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/addresses/"+testAddress, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = s.do(t, http.MethodGet, "/api/addresses/"+testAddress, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, MsgAddressNotFound, resp.Msg)

	w, _ = s.do(t, http.MethodGet, "/api/emails/not-an-address", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Validate(t *testing.T) {
	s := newTestServer(t)
	_, err := s.registry.Create(testAddress)
	require.NoError(t, err)

	w, resp := s.do(t, http.MethodPost, "/api/addresses/validate", `{"emailAddress":"`+testAddress+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var result service.ValidationResult
	decodeData(t, resp, &result)
	assert.True(t, result.ValidFormat)
	assert.True(t, result.Live)

	w, _ = s.do(t, http.MethodPost, "/api/addresses/validate", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Domains(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodPost, "/api/addresses/domains", `{"domain":"quick.email"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var domains domainListResponse
	decodeData(t, resp, &domains)
	assert.Equal(t, 2, domains.Count)

	w, _ = s.do(t, http.MethodDelete, "/api/addresses/domains/quick.email", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/addresses/domains/quick.email", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/addresses/domains/disposable.email", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "the last domain cannot be removed")

	w, resp = s.do(t, http.MethodGet, "/api/addresses/domains/available", "")
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, resp, &domains)
	assert.Equal(t, []string{"disposable.email"}, domains.Domains)

	w, resp = s.do(t, http.MethodGet, "/api/addresses/patterns/available", "")
	require.Equal(t, http.StatusOK, w.Code)
	var patterns patternListResponse
	decodeData(t, resp, &patterns)
	assert.Equal(t, service.Patterns, patterns.Patterns)
}

func TestRouter_Stats(t *testing.T) {
	s := newTestServer(t)
	_, err := s.registry.Create(testAddress)
	require.NoError(t, err)

	w, resp := s.do(t, http.MethodGet, "/api/addresses/stats/overview", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]any
	decodeData(t, resp, &stats)
	assert.EqualValues(t, 1, stats["activeAddresses"])
	assert.EqualValues(t, 24, stats["emailExpirationHours"])
}

func TestRouter_Abuse(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/abuse/domains", `{"domain":"evil.org"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := s.do(t, http.MethodGet, "/api/abuse/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats security.Stats
	decodeData(t, resp, &stats)
	assert.Contains(t, stats.BlockedDomains, "evil.org")

	w, _ = s.do(t, http.MethodDelete, "/api/abuse/domains/evil.org", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodDelete, "/api/abuse/domains/evil.org", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	t.Run("内容规则", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/api/abuse/patterns", `{"pattern":"free\\s+bitcoin"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		w, _ = s.do(t, http.MethodPost, "/api/abuse/patterns", `{"pattern":"("}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = s.do(t, http.MethodDelete, "/api/abuse/patterns", `{"pattern":"free\\s+bitcoin"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		w, _ = s.do(t, http.MethodDelete, "/api/abuse/patterns", `{"pattern":"free\\s+bitcoin"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	s.do(t, http.MethodGet, "/api/addresses/domains/available", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tempie_http_requests_total")
}

func TestCorsConfig(t *testing.T) {
	all := corsConfig([]string{"*"})
	assert.True(t, all.AllowAllOrigins)
	assert.False(t, all.AllowCredentials)
	assert.Empty(t, all.AllowOrigins)

	listed := corsConfig([]string{"https://tempiemail.com"})
	assert.False(t, listed.AllowAllOrigins)
	assert.True(t, listed.AllowCredentials)
}
