package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/alfredjeanlab/storescan/internal/events"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/store"
)

type mockStore struct {
	codes  map[string]*model.ScannedCode
	events []*model.Event

	// createErr, when non-nil, is returned by CreateCode.
	createErr error
}

func newMockStore() *mockStore {
	return &mockStore{codes: make(map[string]*model.ScannedCode)}
}

func (m *mockStore) CreateCode(_ context.Context, code *model.ScannedCode) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.codes[code.ID] = code
	return nil
}

func (m *mockStore) GetCode(_ context.Context, id string) (*model.ScannedCode, error) {
	c, ok := m.codes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (m *mockStore) ListCodes(_ context.Context, filter model.ScanFilter) ([]*model.ScannedCode, int, error) {
	var result []*model.ScannedCode
	for _, c := range m.codes {
		if c.StoreScope == filter.Scope {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CapturedAt.Equal(result[j].CapturedAt) {
			return result[i].CapturedAt.After(result[j].CapturedAt)
		}
		return result[i].ID > result[j].ID
	})
	total := len(result)
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, total, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, total, nil
}

func (m *mockStore) ListAllCodes(_ context.Context) ([]*model.ScannedCode, error) {
	var result []*model.ScannedCode
	for _, c := range m.codes {
		result = append(result, c)
	}
	return result, nil
}

func (m *mockStore) DeleteCode(_ context.Context, id string) error {
	if _, ok := m.codes[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.codes, id)
	return nil
}

func (m *mockStore) ClearScope(_ context.Context, scope string) (int64, error) {
	var n int64
	for id, c := range m.codes {
		if c.StoreScope == scope {
			delete(m.codes, id)
			n++
		}
	}
	return n, nil
}

func (m *mockStore) RecordEvent(_ context.Context, event *model.Event) error {
	event.ID = int64(len(m.events) + 1)
	m.events = append(m.events, event)
	return nil
}

func (m *mockStore) ListEvents(_ context.Context, scope string, afterID int64, _ int) ([]*model.Event, error) {
	var result []*model.Event
	for _, e := range m.events {
		if e.Scope == scope && e.ID > afterID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error {
	return nil
}

// seed inserts a code directly into the mock store.
func (m *mockStore) seed(id, scope, payload string, at time.Time) *model.ScannedCode {
	c := &model.ScannedCode{
		ID:         id,
		Payload:    payload,
		Symbology:  model.SymbologyEAN13,
		CapturedAt: at,
		StoreScope: scope,
	}
	m.codes[id] = c
	return c
}

func newTestServer() (*ScanServer, *mockStore, http.Handler) {
	ms := newMockStore()
	s := NewScanServer(ms, events.Discard)
	return s, ms, s.NewHTTPHandler(Auth{})
}

// doJSON performs an HTTP request with an optional JSON body and returns the recorder.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set(HeaderActor, "alice")
	req.Header.Set(HeaderOrigin, "till-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// requireStatus asserts the recorder has the expected HTTP status code.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

// decodeJSON decodes the recorder's response body into v.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHandleHTTPErrors(t *testing.T) {
	for _, tc := range []struct {
		name      string
		method    string
		path      string
		body      any
		code      int
		wantError string
	}{
		{"CreateCode/MissingPayload", "POST", "/v1/scopes/Adoni/codes", map[string]any{"symbology": "ean_13"}, 400, "payload is required"},
		{"CreateCode/BlankScope", "POST", "/v1/scopes/%20/codes", map[string]any{"payload": "4006381333931"}, 400, "store_scope is required"},
		{"ListCodes/BadLimit", "GET", "/v1/scopes/Adoni/codes?limit=x", nil, 400, "limit must be an integer"},
		{"ListCodes/NegativeOffset", "GET", "/v1/scopes/Adoni/codes?offset=-1", nil, 400, "limit and offset must not be negative"},
		{"GetCode/NotFound", "GET", "/v1/codes/sc-missing", nil, 404, ""},
		{"DeleteCode/NotFound", "DELETE", "/v1/scopes/Adoni/codes/sc-missing", nil, 404, ""},
		{"ListEvents/BadAfter", "GET", "/v1/scopes/Adoni/events?after=x", nil, 400, "after must be an integer"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, h := newTestServer()
			rec := doJSON(t, h, tc.method, tc.path, tc.body)
			requireStatus(t, rec, tc.code)
			if tc.wantError != "" {
				var body map[string]string
				decodeJSON(t, rec, &body)
				if body["error"] != tc.wantError {
					t.Fatalf("expected error=%q, got %q", tc.wantError, body["error"])
				}
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "GET", "/v1/health", nil)
	requireStatus(t, rec, 200)
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %q", body["status"])
	}
}

func TestHandleCreateCode(t *testing.T) {
	_, ms, h := newTestServer()
	before := time.Now().UTC()
	rec := doJSON(t, h, "POST", "/v1/scopes/Adoni/codes", map[string]any{
		"payload":   "4006381333931",
		"symbology": "EAN-13",
	})
	requireStatus(t, rec, 201)
	var code model.ScannedCode
	decodeJSON(t, rec, &code)
	if code.ID == "" || code.ID[:3] != "sc-" {
		t.Fatalf("expected server-issued ID, got %q", code.ID)
	}
	if code.StoreScope != "Adoni" || code.Symbology != model.SymbologyEAN13 {
		t.Fatalf("got scope=%q symbology=%q", code.StoreScope, code.Symbology)
	}
	if code.CapturedAt.Before(before.Add(-time.Second)) {
		t.Fatalf("expected server capture time, got %v", code.CapturedAt)
	}
	if code.CreatedBy != "alice" || code.Origin != "till-1" {
		t.Fatalf("expected identity from headers, got created_by=%q origin=%q", code.CreatedBy, code.Origin)
	}
	if len(ms.events) != 1 || ms.events[0].Topic != "storescan.adoni.scanned_codes.created" {
		t.Fatalf("expected one created event, got %+v", ms.events)
	}
}

func TestHandleCreateCode_DuplicatePayloadsAllowed(t *testing.T) {
	_, ms, h := newTestServer()
	for range 2 {
		rec := doJSON(t, h, "POST", "/v1/scopes/Adoni/codes", map[string]any{"payload": "4006381333931"})
		requireStatus(t, rec, 201)
	}
	if len(ms.codes) != 2 {
		t.Fatalf("expected 2 stored codes, got %d", len(ms.codes))
	}
}

func TestHandleListCodes(t *testing.T) {
	_, ms, h := newTestServer()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ms.seed("sc-1", "Adoni", "111111111", base)
	ms.seed("sc-2", "Adoni", "222222222", base.Add(time.Minute))
	ms.seed("sc-3", "Cherechiu", "333333333", base.Add(2*time.Minute))

	rec := doJSON(t, h, "GET", "/v1/scopes/Adoni/codes", nil)
	requireStatus(t, rec, 200)
	var body struct {
		Codes []model.ScannedCode `json:"codes"`
		Total int                 `json:"total"`
	}
	decodeJSON(t, rec, &body)
	if body.Total != 2 || len(body.Codes) != 2 {
		t.Fatalf("expected 2 codes, got total=%d len=%d", body.Total, len(body.Codes))
	}
	if body.Codes[0].ID != "sc-2" || body.Codes[1].ID != "sc-1" {
		t.Fatalf("expected newest first, got %s, %s", body.Codes[0].ID, body.Codes[1].ID)
	}
}

func TestHandleListCodes_Pagination(t *testing.T) {
	_, ms, h := newTestServer()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ms.seed("sc-1", "Adoni", "111111111", base)
	ms.seed("sc-2", "Adoni", "222222222", base.Add(time.Minute))
	ms.seed("sc-3", "Adoni", "333333333", base.Add(2*time.Minute))

	rec := doJSON(t, h, "GET", "/v1/scopes/Adoni/codes?limit=1&offset=1", nil)
	requireStatus(t, rec, 200)
	var body struct {
		Codes []model.ScannedCode `json:"codes"`
		Total int                 `json:"total"`
	}
	decodeJSON(t, rec, &body)
	if body.Total != 3 || len(body.Codes) != 1 || body.Codes[0].ID != "sc-2" {
		t.Fatalf("got total=%d codes=%+v", body.Total, body.Codes)
	}
}

func TestHandleListCodes_Empty(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "GET", "/v1/scopes/Nowhere/codes", nil)
	requireStatus(t, rec, 200)
	var body map[string]json.RawMessage
	decodeJSON(t, rec, &body)
	if string(body["codes"]) != "[]" {
		t.Fatalf("expected empty JSON array, got %s", body["codes"])
	}
}

func TestHandleGetCode(t *testing.T) {
	_, ms, h := newTestServer()
	ms.seed("sc-1", "Adoni", "111111111", time.Now())
	rec := doJSON(t, h, "GET", "/v1/codes/sc-1", nil)
	requireStatus(t, rec, 200)
	var code model.ScannedCode
	decodeJSON(t, rec, &code)
	if code.Payload != "111111111" {
		t.Fatalf("got payload %q", code.Payload)
	}
}

func TestHandleDeleteCode(t *testing.T) {
	_, ms, h := newTestServer()
	ms.seed("sc-1", "Adoni", "111111111", time.Now())

	rec := doJSON(t, h, "DELETE", "/v1/scopes/Adoni/codes/sc-1", nil)
	requireStatus(t, rec, 204)
	if _, ok := ms.codes["sc-1"]; ok {
		t.Fatal("expected code to be deleted")
	}
	if len(ms.events) != 1 || ms.events[0].Topic != "storescan.adoni.scanned_codes.deleted" {
		t.Fatalf("expected one deleted event, got %+v", ms.events)
	}
}

func TestHandleDeleteCode_WrongScope(t *testing.T) {
	_, ms, h := newTestServer()
	ms.seed("sc-1", "Adoni", "111111111", time.Now())

	rec := doJSON(t, h, "DELETE", "/v1/scopes/Cherechiu/codes/sc-1", nil)
	requireStatus(t, rec, 403)
	if _, ok := ms.codes["sc-1"]; !ok {
		t.Fatal("code of another scope must survive")
	}
}

func TestHandleClearScope(t *testing.T) {
	_, ms, h := newTestServer()
	ms.seed("sc-1", "Adoni", "111111111", time.Now())
	ms.seed("sc-2", "Adoni", "222222222", time.Now())
	ms.seed("sc-3", "Cherechiu", "333333333", time.Now())

	rec := doJSON(t, h, "DELETE", "/v1/scopes/Adoni/codes", nil)
	requireStatus(t, rec, 200)
	var body map[string]int64
	decodeJSON(t, rec, &body)
	if body["deleted"] != 2 {
		t.Fatalf("expected deleted=2, got %d", body["deleted"])
	}
	if len(ms.codes) != 1 {
		t.Fatalf("expected other scope untouched, %d codes left", len(ms.codes))
	}
}

func TestHandleListEvents(t *testing.T) {
	_, _, h := newTestServer()
	for _, p := range []string{"111111111", "222222222"} {
		requireStatus(t, doJSON(t, h, "POST", "/v1/scopes/Adoni/codes", map[string]any{"payload": p}), 201)
	}
	requireStatus(t, doJSON(t, h, "POST", "/v1/scopes/Cherechiu/codes", map[string]any{"payload": "333333333"}), 201)

	rec := doJSON(t, h, "GET", "/v1/scopes/Adoni/events?after=1", nil)
	requireStatus(t, rec, 200)
	var body struct {
		Events []model.Event `json:"events"`
	}
	decodeJSON(t, rec, &body)
	if len(body.Events) != 1 || body.Events[0].ID != 2 {
		t.Fatalf("expected only event 2, got %+v", body.Events)
	}
}

func TestHandleScopeClients(t *testing.T) {
	_, _, h := newTestServer()
	requireStatus(t, doJSON(t, h, "POST", "/v1/scopes/Adoni/codes", map[string]any{"payload": "4006381333931"}), 201)

	rec := doJSON(t, h, "GET", "/v1/scopes/Adoni/clients", nil)
	requireStatus(t, rec, 200)
	var body struct {
		Clients []struct {
			Origin string `json:"origin"`
			Actor  string `json:"actor"`
			Scans  int    `json:"scans"`
		} `json:"clients"`
	}
	decodeJSON(t, rec, &body)
	if len(body.Clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(body.Clients))
	}
	if c := body.Clients[0]; c.Origin != "till-1" || c.Actor != "alice" || c.Scans != 1 {
		t.Fatalf("unexpected roster entry %+v", c)
	}

	rec = doJSON(t, h, "GET", "/v1/scopes/Cherechiu/clients", nil)
	requireStatus(t, rec, 200)
	var empty map[string]json.RawMessage
	decodeJSON(t, rec, &empty)
	if string(empty["clients"]) != "[]" {
		t.Fatalf("expected empty roster, got %s", empty["clients"])
	}
}

func TestHTTPAuth_ScopedToken(t *testing.T) {
	ms := newMockStore()
	ms.seed("sc-1", "Cherechiu", "111111111", time.Now())
	s := NewScanServer(ms, events.Discard)
	h := s.NewHTTPHandler(Auth{ScopeTokens: map[string][]string{"shop": {"Adoni"}}})

	do := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer shop")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	requireStatus(t, do("GET", "/v1/scopes/Adoni/codes"), 200)
	requireStatus(t, do("GET", "/v1/scopes/Cherechiu/codes"), 403)
	requireStatus(t, do("DELETE", "/v1/scopes/Cherechiu/codes"), 403)
	// Records of other scopes are invisible.
	requireStatus(t, do("GET", "/v1/codes/sc-1"), 404)
}
