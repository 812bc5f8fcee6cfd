package stakingd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"nftstake/core/events"
	"nftstake/core/state"
	"nftstake/gateway/middleware"
	"nftstake/integrations/custody/memory"
	"nftstake/native/nftstake"
	"nftstake/observability"
	"nftstake/storage"
)

const (
	testSecret       = "stakingd-test-secret"
	testSubjectHdr   = "X-Stake-Holder"
	testCollectionID = "0xc1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1"
)

type apiHarness struct {
	t       *testing.T
	server  *httptest.Server
	engine  *nftstake.Engine
	custody *memory.Custody
	events  *events.Recorder
	now     int64
}

func newAPIHarness(t *testing.T, auth middleware.AuthConfig) *apiHarness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	store, err := state.NewStakeStore(db)
	require.NoError(t, err)

	h := &apiHarness{t: t, custody: memory.New(), events: &events.Recorder{}, now: 1_700_000_000}
	engine := nftstake.NewEngine()
	engine.SetStore(store)
	engine.SetCustody(h.custody)
	engine.SetEmitter(h.events)
	engine.SetNowFunc(func() int64 { return h.now })
	h.engine = engine

	srv, err := NewServer(ServerConfig{
		Engine:     engine,
		Auth:       auth,
		Decimals:   9,
		Metrics:    observability.Staking(),
		Registerer: prometheus.NewRegistry(),
		Gatherer:   prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	h.server = httptest.NewServer(srv.Handler())
	t.Cleanup(h.server.Close)
	return h
}

func devAuth() middleware.AuthConfig {
	return middleware.AuthConfig{Enabled: false, DevSubjectHeader: testSubjectHdr}
}

func (h *apiHarness) do(method, path, holder string, body any) (int, map[string]any) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(h.t, err)
	if holder != "" {
		req.Header.Set(testSubjectHdr, holder)
	}
	resp, err := h.server.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func (h *apiHarness) configure(maxLocks uint8) {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "/v1/config", "", configRequest{
		PointsPerLock:       10,
		MaxLocks:            maxLocks,
		FreezePeriodSeconds: 3600,
		Collection:          testCollectionID,
	})
	require.Equal(h.t, http.StatusCreated, status, body)
}

func (h *apiHarness) mint(item nftstake.ItemID, owner nftstake.HolderID) {
	h.t.Helper()
	collection, err := nftstake.ParseCollectionID(testCollectionID)
	require.NoError(h.t, err)
	require.NoError(h.t, h.custody.Mint(item, owner, collection, true))
}

func TestAPILifecycle(t *testing.T) {
	h := newAPIHarness(t, devAuth())
	h.configure(2)

	holder := nftstake.HolderID{0x01}
	item := nftstake.ItemID{0xAA}
	h.mint(item, holder)

	status, body := h.do(http.MethodPost, "/v1/holders", holder.String(), nil)
	require.Equal(t, http.StatusCreated, status, body)
	require.EqualValues(t, 0, body["points"])

	status, body = h.do(http.MethodPost, "/v1/locks/"+item.String(), holder.String(), nil)
	require.Equal(t, http.StatusCreated, status, body)
	require.EqualValues(t, h.now+3600, body["unlockableAt"])

	status, body = h.do(http.MethodGet, "/v1/locks/"+item.String(), "", nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, holder.String(), body["owner"])

	status, body = h.do(http.MethodDelete, "/v1/locks/"+item.String(), holder.String(), nil)
	require.Equal(t, http.StatusUnprocessableEntity, status, body)
	require.Equal(t, "policy_violation", body["class"])

	h.now += 3600
	status, body = h.do(http.MethodDelete, "/v1/locks/"+item.String(), holder.String(), nil)
	require.Equal(t, http.StatusOK, status, body)
	require.EqualValues(t, 10, body["points"])
	require.EqualValues(t, 0, body["activeLocks"])

	status, _ = h.do(http.MethodGet, "/v1/locks/"+item.String(), "", nil)
	require.Equal(t, http.StatusNotFound, status)

	status, body = h.do(http.MethodPost, "/v1/claim", holder.String(), nil)
	require.Equal(t, http.StatusOK, status, body)
	require.EqualValues(t, 10, body["points"])
	require.Equal(t, "10000000000", body["amount"])

	status, body = h.do(http.MethodPost, "/v1/claim", holder.String(), nil)
	require.Equal(t, http.StatusUnprocessableEntity, status, body)

	status, body = h.do(http.MethodGet, "/v1/holders/"+holder.String(), "", nil)
	require.Equal(t, http.StatusOK, status, body)
	require.EqualValues(t, 0, body["points"])

	require.Equal(t, []string{
		events.TypeStakeConfigured,
		events.TypeHolderRegistered,
		events.TypeItemLocked,
		events.TypeItemUnlocked,
		events.TypeRewardsClaimed,
	}, h.events.Types())
}

func TestAPIErrorMapping(t *testing.T) {
	h := newAPIHarness(t, devAuth())

	holder := nftstake.HolderID{0x02}
	other := nftstake.HolderID{0x03}
	item := nftstake.ItemID{0xBB}

	status, _ := h.do(http.MethodGet, "/v1/config", "", nil)
	require.Equal(t, http.StatusNotFound, status)

	h.configure(1)
	status, body := h.do(http.MethodPost, "/v1/config", "", configRequest{
		PointsPerLock: 1, MaxLocks: 1, Collection: testCollectionID,
	})
	require.Equal(t, http.StatusConflict, status, body)
	require.Equal(t, "state_conflict", body["class"])

	status, _ = h.do(http.MethodPost, "/v1/holders", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = h.do(http.MethodPost, "/v1/locks/"+item.String(), holder.String(), nil)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(http.MethodPost, "/v1/holders", holder.String(), nil)
	require.Equal(t, http.StatusCreated, status)
	status, _ = h.do(http.MethodPost, "/v1/holders", holder.String(), nil)
	require.Equal(t, http.StatusConflict, status)

	// Unknown items fail inside the custody service.
	status, body = h.do(http.MethodPost, "/v1/locks/"+item.String(), holder.String(), nil)
	require.Equal(t, http.StatusBadGateway, status, body)
	require.Equal(t, "collaborator_failure", body["class"])

	h.mint(item, holder)
	status, _ = h.do(http.MethodPost, "/v1/locks/"+item.String(), holder.String(), nil)
	require.Equal(t, http.StatusCreated, status)

	status, _ = h.do(http.MethodPost, "/v1/holders", other.String(), nil)
	require.Equal(t, http.StatusCreated, status)
	h.now += 7200
	status, _ = h.do(http.MethodDelete, "/v1/locks/"+item.String(), other.String(), nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(http.MethodPost, "/v1/locks/not-hex", holder.String(), nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestAPIRejectsMalformedConfig(t *testing.T) {
	h := newAPIHarness(t, devAuth())
	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/v1/config", bytes.NewBufferString(`{"maxLocks":1,"bogus":true}`))
	require.NoError(t, err)
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	status, body := h.do(http.MethodPost, "/v1/config", "", configRequest{PointsPerLock: 1, Collection: testCollectionID})
	require.Equal(t, http.StatusUnprocessableEntity, status, body)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	h := newAPIHarness(t, middleware.AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "stakingd"})
	holder := nftstake.HolderID{0x04}

	send := func(method, path, token string, body any) int {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
		req, err := http.NewRequest(method, h.server.URL+path, reader)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := h.server.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	issue := func(subject string, scopes ...string) string {
		token, err := middleware.IssueToken(testSecret, middleware.TokenRequest{
			Subject: subject,
			Issuer:  "stakingd",
			Scopes:  scopes,
			TTL:     time.Hour,
		}, time.Now())
		require.NoError(t, err)
		return token
	}

	cfg := configRequest{PointsPerLock: 5, MaxLocks: 1, FreezePeriodSeconds: 60, Collection: testCollectionID}
	require.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "/v1/config", "", cfg))
	require.Equal(t, http.StatusForbidden, send(http.MethodPost, "/v1/config", issue("operator", ScopeHolder), cfg))
	require.Equal(t, http.StatusCreated, send(http.MethodPost, "/v1/config", issue("operator", ScopeAdmin), cfg))

	require.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "/v1/holders", issue("operator", ScopeHolder), nil))
	require.Equal(t, http.StatusCreated, send(http.MethodPost, "/v1/holders", issue(holder.String(), ScopeHolder), nil))
	require.Equal(t, http.StatusOK, send(http.MethodGet, "/v1/config", "", nil))
}

func TestAPIRateLimitsHolderRoutes(t *testing.T) {
	db := storage.NewMemDB()
	store, err := state.NewStakeStore(db)
	require.NoError(t, err)
	engine := nftstake.NewEngine()
	engine.SetStore(store)
	engine.SetCustody(memory.New())
	srv, err := NewServer(ServerConfig{
		Engine:     engine,
		Auth:       devAuth(),
		RateLimits: map[string]middleware.RateLimit{"claim": {RatePerSecond: 0.001, Burst: 1}},
		Registerer: prometheus.NewRegistry(),
		Gatherer:   prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	holder := nftstake.HolderID{0x05}.String()
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/claim", nil)
		req.Header.Set(testSubjectHdr, holder)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusNotFound, http.StatusTooManyRequests}, codes)
}

func TestHealthz(t *testing.T) {
	h := newAPIHarness(t, devAuth())
	status, body := h.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestPayoutAmount(t *testing.T) {
	require.Equal(t, "0", PayoutAmount(0, 9).Dec())
	require.Equal(t, "25", PayoutAmount(25, 0).Dec())
	require.Equal(t, "4294967295000000000000000000", PayoutAmount(^uint32(0), 18).Dec())
}
