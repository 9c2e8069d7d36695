package server_test

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/veilcast/veilcast/internal/confidential"
	"github.com/veilcast/veilcast/internal/crypto"
	"github.com/veilcast/veilcast/internal/ledger"
	"github.com/veilcast/veilcast/internal/server"
	"github.com/veilcast/veilcast/internal/server/handler"
	"github.com/veilcast/veilcast/internal/service"
)

var (
	apiAdmin = common.HexToAddress("0x1000000000000000000000000000000000000001")
	apiAlice = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

type apiEnv struct {
	srv    *httptest.Server
	engine *confidential.Engine
	ledger *ledger.Ledger
	clock  *clock.Mock
	auth   *crypto.CallbackAuth
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	engine := confidential.NewEngine()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	led := ledger.New(ledger.Config{
		Arithmetic: engine,
		Clock:      mock,
		Logger:     logger,
	})

	auth := crypto.NewCallbackAuth("test-callback-secret")
	stats := service.NewStatsService(led, nil, logger)

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler("test", led.EventCount, logger),
		Events:      handler.NewEventHandler(led, nil, logger),
		Submissions: handler.NewSubmissionHandler(led, engine, false, logger),
		Finalize:    handler.NewFinalizeHandler(led, nil, auth, logger),
		Stats:       handler.NewStatsHandler(stats, logger),
	}

	s := server.NewServer(server.Config{Port: 0}, handlers, nil, nil, logger)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &apiEnv{
		srv:    srv,
		engine: engine,
		ledger: led,
		clock:  mock,
		auth:   auth,
	}
}

func (e *apiEnv) post(t *testing.T, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (e *apiEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.srv.Client().Get(e.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *apiEnv) createEvent(t *testing.T) uint64 {
	t.Helper()
	resp := e.post(t, "/api/events", map[string]any{
		"title":          "BTC close",
		"asset_class":    "btc",
		"target_time":    e.clock.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"duration_hours": 24,
		"admin":          apiAdmin.Hex(),
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	return uint64(body["event_id"].(float64))
}

// ciphertextFor builds a wire submission payload the engine will accept.
func ciphertextFor(value uint32, submitter common.Address) map[string]any {
	ct := make([]byte, 4)
	binary.BigEndian.PutUint32(ct, value)
	return map[string]any{
		"ciphertext": base64.StdEncoding.EncodeToString(ct),
		"proof":      base64.StdEncoding.EncodeToString(confidential.Bind(ct, submitter)),
	}
}

func TestCreateAndGetEvent(t *testing.T) {
	e := newAPIEnv(t)
	id := e.createEvent(t)

	resp := e.get(t, fmt.Sprintf("/api/events/%d", id))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "active", body["state"])
	require.Equal(t, apiAdmin.Hex(), body["admin"])
}

func TestCreateEventRejectsBadAssetClass(t *testing.T) {
	e := newAPIEnv(t)
	resp := e.post(t, "/api/events", map[string]any{
		"title":          "gold close",
		"asset_class":    "gold",
		"target_time":    e.clock.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"duration_hours": 24,
		"admin":          apiAdmin.Hex(),
	}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetEventNotFound(t *testing.T) {
	e := newAPIEnv(t)
	resp := e.get(t, "/api/events/99")
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitRecordsPrediction(t *testing.T) {
	e := newAPIEnv(t)
	id := e.createEvent(t)

	payload := ciphertextFor(500000, apiAlice)
	payload["participant"] = apiAlice.Hex()
	resp := e.post(t, fmt.Sprintf("/api/events/%d/submissions", id), payload, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	check := e.get(t, fmt.Sprintf("/api/events/%d/submissions/%s", id, apiAlice.Hex()))
	body := decodeBody(t, check)
	require.Equal(t, true, body["submitted"])
}

func TestSubmitRejectsForgedProof(t *testing.T) {
	e := newAPIEnv(t)
	id := e.createEvent(t)

	// Proof bound to a different address.
	payload := ciphertextFor(500000, apiAdmin)
	payload["participant"] = apiAlice.Hex()
	resp := e.post(t, fmt.Sprintf("/api/events/%d/submissions", id), payload, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitDuplicateConflicts(t *testing.T) {
	e := newAPIEnv(t)
	id := e.createEvent(t)

	payload := ciphertextFor(500000, apiAlice)
	payload["participant"] = apiAlice.Hex()
	resp := e.post(t, fmt.Sprintf("/api/events/%d/submissions", id), payload, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	again := ciphertextFor(510000, apiAlice)
	again["participant"] = apiAlice.Hex()
	resp = e.post(t, fmt.Sprintf("/api/events/%d/submissions", id), again, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestFullLifecycleOverHTTP(t *testing.T) {
	e := newAPIEnv(t)
	id := e.createEvent(t)

	payload := ciphertextFor(500000, apiAlice)
	payload["participant"] = apiAlice.Hex()
	resp := e.post(t, fmt.Sprintf("/api/events/%d/submissions", id), payload, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Past the deadline anyone can end the event.
	e.clock.Add(25 * time.Hour)
	resp = e.post(t, fmt.Sprintf("/api/events/%d/end", id), map[string]any{}, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Settle the reference price once the target time is reached.
	e.clock.Add(24 * time.Hour)
	resp = e.post(t, fmt.Sprintf("/api/events/%d/price", id), map[string]any{
		"price":  498000,
		"caller": apiAdmin.Hex(),
	}, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Trigger finalization; the response carries the request id.
	resp = e.post(t, fmt.Sprintf("/api/events/%d/finalize", id), map[string]any{
		"caller": apiAdmin.Hex(),
	}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	requestID := body["request_id"].(string)
	require.NotEmpty(t, requestID)

	// Drain the engine's queue and deliver the cleartext via the callback
	// endpoint, exactly as an external oracle would.
	var reqMsg confidential.Request
	select {
	case reqMsg = <-e.engine.Requests():
	default:
		t.Fatal("no pending decryption request")
	}
	require.Equal(t, requestID, reqMsg.ID)

	cb := map[string]any{
		"request_id": reqMsg.ID,
		"cleartext":  base64.StdEncoding.EncodeToString(reqMsg.Cleartext),
	}
	resp = e.post(t, "/api/oracle/callback", cb, map[string]string{
		"X-Oracle-Signature": e.auth.Sign(reqMsg.ID, reqMsg.Cleartext),
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The event is finalized with the revealed average.
	ev, err := e.ledger.GetEvent(id)
	require.NoError(t, err)
	require.True(t, ev.Finalized)
	require.EqualValues(t, 500000, ev.RevealedAverage)
}

func TestOracleCallbackRejectsBadSignature(t *testing.T) {
	e := newAPIEnv(t)
	cb := map[string]any{
		"request_id": "req-1",
		"cleartext":  base64.StdEncoding.EncodeToString([]byte{0, 0, 0, 1}),
	}
	resp := e.post(t, "/api/oracle/callback", cb, map[string]string{
		"X-Oracle-Signature": "bogus",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListEventsFallsBackToRegistry(t *testing.T) {
	e := newAPIEnv(t)
	e.createEvent(t)
	e.createEvent(t)
	e.createEvent(t)

	resp := e.get(t, "/api/events?limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.EqualValues(t, 3, body["total"])
	events := body["events"].([]any)
	require.Len(t, events, 2)
	// Newest first.
	first := events[0].(map[string]any)
	require.EqualValues(t, 2, first["id"])
}

func TestStatsEndpoint(t *testing.T) {
	e := newAPIEnv(t)
	e.createEvent(t)
	e.createEvent(t)

	resp := e.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.EqualValues(t, 2, body["total_events"])
	require.EqualValues(t, 2, body["active_events"])
}

func TestHealthEndpoint(t *testing.T) {
	e := newAPIEnv(t)
	resp := e.get(t, "/api/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "test", body["mode"])
}

func TestAuthMiddlewareGuardsAPI(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	engine := confidential.NewEngine()
	led := ledger.New(ledger.Config{Arithmetic: engine, Logger: logger})
	stats := service.NewStatsService(led, nil, logger)

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler("test", led.EventCount, logger),
		Events:      handler.NewEventHandler(led, nil, logger),
		Submissions: handler.NewSubmissionHandler(led, engine, false, logger),
		Finalize:    handler.NewFinalizeHandler(led, nil, crypto.NewCallbackAuth(""), logger),
		Stats:       handler.NewStatsHandler(stats, logger),
	}
	s := server.NewServer(server.Config{Port: 0, APIKey: "sekret"}, handlers, nil, nil, logger)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/stats", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sekret")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
