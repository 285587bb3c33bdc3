package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callhub/internal/auth"
	"callhub/internal/calls"
	"callhub/internal/config"
	"callhub/internal/directory"
	"callhub/internal/events/eventstest"
	"callhub/internal/history"
	"callhub/internal/presence"
	"callhub/internal/registry"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type fixture struct {
	router *gin.Engine
	auth   *auth.Manager
	reg    *registry.Registry
	calls  *calls.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	am, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	reg := registry.New(am, nil)
	archive := history.NewService(history.NewMemoryRepo())
	mgr := calls.NewManager(
		calls.NewMemoryStore(),
		directory.NewMemory("alice", "bob", "carol"),
		archive,
		reg,
		calls.Options{RingTimeout: time.Minute},
	)
	h := Handlers{
		Calls:    mgr,
		History:  archive,
		Presence: presence.NewTracker(reg, time.Second, nil),
	}

	r := gin.New()
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(am))
	h.Mount(v1)
	return &fixture{router: r, auth: am, reg: reg, calls: mgr}
}

func (f *fixture) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		tok, err := f.auth.Issue(time.Now(), userID, auth.TokenTypeAccess, time.Hour)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type callEnvelope struct {
	Call calls.Session `json:"call"`
}

func decodeCall(t *testing.T, w *httptest.ResponseRecorder) calls.Session {
	t.Helper()
	var env callEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return env.Call
}

func TestRequiresBearerToken(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodGet, "/v1/calls/active", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestActiveCall(t *testing.T) {
	f := newFixture(t)
	s, err := f.calls.Initiate(context.Background(), "alice", "bob", calls.CallTypeVoice)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	w := f.do(t, http.MethodGet, "/v1/calls/active", "bob", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeCall(t, w); got.CallID != s.CallID || got.Status != calls.StatusPending {
		t.Fatalf("unexpected call %+v", got)
	}

	if w := f.do(t, http.MethodGet, "/v1/calls/active", "carol", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for idle user, got %d", w.Code)
	}
}

func TestCallDetailsAndQuality(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.calls.Initiate(ctx, "alice", "bob", calls.CallTypeVideo)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := f.calls.Accept(ctx, s.CallID, "bob"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := f.calls.End(ctx, s.CallID, "alice", ""); err != nil {
		t.Fatalf("End: %v", err)
	}

	path := "/v1/calls/" + s.CallID
	if w := f.do(t, http.MethodGet, path, "carol", ""); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/calls/missing", "alice", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown call, got %d", w.Code)
	}
	w := f.do(t, http.MethodGet, path, "bob", "")
	if w.Code != http.StatusOK || decodeCall(t, w).Status != calls.StatusEnded {
		t.Fatalf("expected ended call, got %d: %s", w.Code, w.Body.String())
	}

	if w := f.do(t, http.MethodPatch, path+"/quality", "bob", `{"quality":"meh"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad quality, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPatch, path+"/quality", "carol", `{"quality":"good"}`); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider rating, got %d", w.Code)
	}
	w = f.do(t, http.MethodPatch, path+"/quality", "bob", `{"quality":"good"}`)
	if w.Code != http.StatusOK || decodeCall(t, w).Quality != calls.QualityGood {
		t.Fatalf("expected rated call, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRateQualityOfActiveCallConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.calls.Initiate(ctx, "alice", "bob", calls.CallTypeVoice)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := f.calls.Accept(ctx, s.CallID, "bob"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	w := f.do(t, http.MethodPatch, "/v1/calls/"+s.CallID+"/quality", "alice", `{"quality":"good"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while call is live, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHistoryAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.calls.Initiate(ctx, "alice", "bob", calls.CallTypeVoice)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := f.calls.Reject(ctx, s.CallID, "bob"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	w := f.do(t, http.MethodGet, "/v1/calls/history?page=1&limit=10", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var page history.Page
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Pagination.Total != 1 || len(page.Calls) != 1 || page.Calls[0].Status != calls.StatusRejected {
		t.Fatalf("unexpected page %+v", page)
	}

	if w := f.do(t, http.MethodGet, "/v1/calls/history?limit=ten", "alice", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/calls/history?callType=fax", "alice", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad callType, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/calls/history?page=9223372036854775807", "alice", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range page, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/v1/calls/stats?days=7", "bob", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var stats history.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalCalls != 1 || stats.VoiceCalls != 1 || stats.CompletedCalls != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPresence(t *testing.T) {
	f := newFixture(t)
	f.reg.Register(context.Background(), "bob", eventstest.NewRecorder())

	w := f.do(t, http.MethodGet, "/v1/presence/bob", "alice", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"online":true`) {
		t.Fatalf("expected bob online, got %d: %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodGet, "/v1/presence/carol", "alice", "")
	if !strings.Contains(w.Body.String(), `"online":false`) {
		t.Fatalf("expected carol offline, got %s", w.Body.String())
	}
}
