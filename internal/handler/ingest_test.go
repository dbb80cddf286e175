package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"signalmarket/internal/dispatch"
	"signalmarket/internal/models"
	"signalmarket/internal/resolver"
	"signalmarket/internal/service"
	"signalmarket/internal/tracker"
)

func newTestRouter(repo *stubRepo, hub *dispatch.Hub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	ingest := &service.IngestService{
		Resolver:      resolver.New(repo, nil),
		Tracker:       tracker.New(repo, nil, 0),
		Hub:           hub,
		DefaultSource: "tradingview",
	}
	r := gin.New()
	(&IngestHandler{Ingest: ingest}).Register(r)
	(&SignalHandler{Repo: repo}).Register(r)
	(&StrategyHandler{Repo: repo}).Register(r)
	return r
}

func postWebhook(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

type webhookResponse struct {
	Success    bool   `json:"success"`
	SignalID   string `json:"signalId"`
	StrategyID string `json:"strategyId"`
	Duplicate  bool   `json:"duplicate"`
	Orphan     bool   `json:"orphan"`
	Error      string `json:"error"`
}

func decodeWebhook(t *testing.T, w *httptest.ResponseRecorder) webhookResponse {
	t.Helper()
	var resp webhookResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestWebhook_EntryThenExit(t *testing.T) {
	repo := &stubRepo{}
	r := newTestRouter(repo, nil)

	entry := `BTCUSDT.P7RSI{"action":"buy","marketPosition":"long","ticker":"BTCUSDT","price":"100","contracts":"1"}`
	w := postWebhook(r, entry)
	if w.Code != http.StatusAccepted {
		t.Fatalf("entry status=%d body=%s", w.Code, w.Body.String())
	}
	entryResp := decodeWebhook(t, w)
	if !entryResp.Success || entryResp.SignalID == "" || entryResp.StrategyID == "" {
		t.Fatalf("unexpected entry response: %+v", entryResp)
	}

	// The unknown token auto-creates a virtual strategy.
	st, err := repo.GetStrategyByID(context.Background(), entryResp.StrategyID)
	if err != nil || !st.IsVirtual || st.Name != "7RSI" {
		t.Fatalf("virtual strategy not created: %+v err=%v", st, err)
	}

	exit := `Alert on BTCUSDT.P7RSI{"action":"sell","marketPosition":"flat","ticker":"BTCUSDT","price":"110"}`
	w = postWebhook(r, exit)
	if w.Code != http.StatusAccepted {
		t.Fatalf("exit status=%d body=%s", w.Code, w.Body.String())
	}
	exitResp := decodeWebhook(t, w)
	if exitResp.Orphan {
		t.Fatalf("exit should have matched the open entry")
	}

	closed, err := repo.GetSignalByID(context.Background(), entryResp.SignalID)
	if err != nil {
		t.Fatalf("entry lookup failed: %v", err)
	}
	if closed.ProfitLoss == nil || !closed.ProfitLoss.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("profitLoss=%v want=10", closed.ProfitLoss)
	}
	if closed.Status != models.SignalStatusExecuted {
		t.Fatalf("entry status=%s want=EXECUTED", closed.Status)
	}
}

func TestWebhook_EntryWithoutPriceAccepted(t *testing.T) {
	repo := &stubRepo{}
	r := newTestRouter(repo, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook?symbol=BTCUSDT",
		strings.NewReader(`7RSI{"action":"buy","contracts":"100","marketPosition":"long"}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d want=202 body=%s", w.Code, w.Body.String())
	}
	resp := decodeWebhook(t, w)
	if !resp.Success || resp.SignalID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	sig, err := repo.GetSignalByID(context.Background(), resp.SignalID)
	if err != nil {
		t.Fatalf("signal lookup failed: %v", err)
	}
	if sig.Type != models.SignalTypeEntry || sig.Status != models.SignalStatusActive {
		t.Fatalf("type=%s status=%s want ENTRY/ACTIVE", sig.Type, sig.Status)
	}
	if sig.ProfitLoss != nil {
		t.Fatalf("profitLoss must be nil for an open entry")
	}
}

func TestWebhook_OrphanExit(t *testing.T) {
	repo := &stubRepo{}
	r := newTestRouter(repo, nil)

	w := postWebhook(r, `ETHUSDT7RSI{"action":"sell","marketPosition":"flat","ticker":"ETHUSDT","price":"200"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if resp := decodeWebhook(t, w); !resp.Orphan {
		t.Fatalf("expected orphan flag: %+v", resp)
	}
}

func TestWebhook_JSONEnvelope(t *testing.T) {
	repo := &stubRepo{}
	r := newTestRouter(repo, nil)

	env := map[string]string{
		"text":   `7RSI{"action":"buy","marketPosition":"long","price":"100"}`,
		"symbol": "BTCUSDT",
		"source": "custom",
	}
	b, _ := json.Marshal(env)
	w := postWebhook(r, string(b))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	resp := decodeWebhook(t, w)

	sig, err := repo.GetSignalByID(context.Background(), resp.SignalID)
	if err != nil || sig.Symbol != "BTCUSDT" || sig.Source != "custom" {
		t.Fatalf("envelope fields not applied: %+v err=%v", sig, err)
	}
}

func TestWebhook_ParseFailureIs400(t *testing.T) {
	repo := &stubRepo{}
	r := newTestRouter(repo, nil)

	w := postWebhook(r, "not an alert at all")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", w.Code)
	}
	if resp := decodeWebhook(t, w); resp.Success || resp.Error == "" {
		t.Fatalf("unexpected error body: %+v", resp)
	}
	if len(repo.signals) != 0 {
		t.Fatalf("nothing may be persisted for unparseable alerts")
	}
}

func TestWebhook_PublishesToHub(t *testing.T) {
	repo := &stubRepo{}
	hub := dispatch.NewHub(nil, 8)
	r := newTestRouter(repo, hub)

	_, events, cancel := hub.Subscribe(dispatch.Subscription{})
	defer cancel()

	postWebhook(r, `BTCUSDT7RSI{"action":"buy","marketPosition":"long","ticker":"BTCUSDT","price":"100"}`)

	select {
	case ev := <-events:
		if ev.Kind != dispatch.EventSignalNew || ev.Symbol != "BTCUSDT" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("no event published")
	}
}

func TestListSignals_FilterByStrategy(t *testing.T) {
	repo := &stubRepo{}
	r := newTestRouter(repo, nil)

	postWebhook(r, `BTCUSDT7RSI{"action":"buy","marketPosition":"long","ticker":"BTCUSDT","price":"100"}`)
	postWebhook(r, `ETHUSDTMACD{"action":"sell","marketPosition":"short","ticker":"ETHUSDT","price":"50"}`)

	st, err := repo.GetStrategyByToken(context.Background(), "tradingview", "MACD")
	if err != nil {
		t.Fatalf("strategy lookup failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/signals?strategyId="+st.ID, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Data []models.Signal `json:"data"`
		Meta map[string]any  `json:"meta"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Symbol != "ETHUSDT" {
		t.Fatalf("unexpected signals: %+v", resp.Data)
	}
}

func TestPromoteStrategy(t *testing.T) {
	repo := &stubRepo{}
	r := newTestRouter(repo, nil)

	postWebhook(r, `BTCUSDT7RSI{"action":"buy","marketPosition":"long","ticker":"BTCUSDT","price":"100"}`)
	st, _ := repo.GetStrategyByToken(context.Background(), "tradingview", "7RSI")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/strategies/"+st.ID+"/promote",
		strings.NewReader(`{"providerId":"prov-1"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	promoted, _ := repo.GetStrategyByID(context.Background(), st.ID)
	if promoted.IsVirtual || promoted.ProviderID == nil || *promoted.ProviderID != "prov-1" {
		t.Fatalf("promotion not applied: %+v", promoted)
	}

	// A second promote must conflict.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/strategies/"+st.ID+"/promote",
		strings.NewReader(`{"providerId":"prov-2"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("second promote status=%d want=409", w.Code)
	}
}
