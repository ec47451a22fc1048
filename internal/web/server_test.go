package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsporty/prodtrack/internal/cache"
	"github.com/dsporty/prodtrack/internal/reconcile"
	"github.com/dsporty/prodtrack/internal/remote"
)

// stubRemote is a minimal in-memory remote store for handler tests.
type stubRemote struct {
	records []remote.Record
	nextID  int
}

func (s *stubRemote) Select(_ context.Context) ([]remote.Record, error) {
	return append([]remote.Record(nil), s.records...), nil
}

func (s *stubRemote) Insert(_ context.Context, records []remote.NewRecord) ([]remote.Record, error) {
	inserted := make([]remote.Record, 0, len(records))
	for _, r := range records {
		s.nextID++
		row := remote.Record{
			ID:           fmt.Sprintf("remote-%d", s.nextID),
			Exporter:     r.Exporter,
			Product:      r.Product,
			Quantity:     r.Quantity,
			MaterialID:   r.MaterialID,
			ImageDataURL: r.ImageDataURL,
			Timestamp:    r.Timestamp,
			Verified:     r.Verified,
		}
		s.records = append(s.records, row)
		inserted = append(inserted, row)
	}
	return inserted, nil
}

func (s *stubRemote) UpdateVerified(_ context.Context, id string, verified bool) error {
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Verified = verified
			return nil
		}
	}
	return fmt.Errorf("record not found")
}

func (s *stubRemote) Delete(_ context.Context, id string) error {
	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	return nil
}

func (s *stubRemote) DeleteAll(_ context.Context) error {
	s.records = nil
	return nil
}

func (s *stubRemote) Ping(_ context.Context) error { return nil }

func newTestServer(t *testing.T, online bool) (*Server, *reconcile.Reconciler) {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })

	rec := reconcile.New(&stubRemote{}, c, "producao2026", slog.Default())
	rec.SetOnline(online)
	return NewServer(rec, slog.Default()), rec
}

func submitBody(exporter string) *bytes.Buffer {
	body := map[string]any{
		"exporter": exporter,
		"items": []map[string]any{
			{"product": "Short", "quantity": 3, "materialId": "L1"},
		},
		"imageDataUrl": "data:image/png;base64,AAAA",
	}
	buf := &bytes.Buffer{}
	_ = json.NewEncoder(buf).Encode(body)
	return buf
}

func decode(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	return payload
}

func TestSubmitOnline(t *testing.T) {
	srv, _ := newTestServer(t, true)

	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", submitBody("Ana")))

	require.Equal(t, http.StatusCreated, res.Code)
	payload := decode(t, res)
	records := payload["records"].([]any)
	require.Len(t, records, 1)
	first := records[0].(map[string]any)
	assert.Equal(t, "ANA", first["exporter"])
	assert.True(t, strings.HasPrefix(first["id"].(string), "remote-"))
	assert.InDelta(t, 0.30, first["value"].(float64), 1e-9)
}

func TestSubmitOfflineReturnsLocalRecord(t *testing.T) {
	srv, _ := newTestServer(t, false)

	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", submitBody("Ana")))

	require.Equal(t, http.StatusCreated, res.Code)
	payload := decode(t, res)
	assert.Contains(t, payload["notice"], "saved locally")
	first := payload["records"].([]any)[0].(map[string]any)
	assert.True(t, strings.HasPrefix(first["id"].(string), "local_"))
}

func TestSubmitValidationError(t *testing.T) {
	srv, _ := newTestServer(t, true)

	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", submitBody("   ")))

	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, decode(t, res)["error"], "name")
}

func TestSubmitMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, true)

	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader("{")))

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestListRecords(t *testing.T) {
	srv, _ := newTestServer(t, true)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", submitBody("Ana")))
	require.Equal(t, http.StatusCreated, res.Code)

	res = httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/records", nil))

	require.Equal(t, http.StatusOK, res.Code)
	payload := decode(t, res)
	assert.Len(t, payload["records"], 1)
	status := payload["status"].(map[string]any)
	assert.Equal(t, true, status["online"])
}

func TestVerifyRefusedOffline(t *testing.T) {
	srv, rec := newTestServer(t, true)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", submitBody("Ana")))
	require.Equal(t, http.StatusCreated, res.Code)
	id := rec.Records()[0].ID

	rec.SetOnline(false)
	res = httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records/"+id+"/verify", nil))

	assert.Equal(t, http.StatusConflict, res.Code)
	assert.False(t, rec.Records()[0].Verified)
}

func TestVerifyToggles(t *testing.T) {
	srv, rec := newTestServer(t, true)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", submitBody("Ana")))
	require.Equal(t, http.StatusCreated, res.Code)
	id := rec.Records()[0].ID

	res = httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records/"+id+"/verify", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, rec.Records()[0].Verified)
}

func TestVerifyUnknownRecord(t *testing.T) {
	srv, _ := newTestServer(t, true)

	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records/remote-404/verify", nil))

	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestDeleteRecord(t *testing.T) {
	srv, rec := newTestServer(t, true)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", submitBody("Ana")))
	require.Equal(t, http.StatusCreated, res.Code)
	id := rec.Records()[0].ID

	res = httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/api/records/"+id, nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, rec.Records())
}

func TestWipeWrongPassword(t *testing.T) {
	srv, rec := newTestServer(t, true)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", submitBody("Ana")))
	require.Equal(t, http.StatusCreated, res.Code)

	res = httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/admin/wipe", strings.NewReader(`{"password":"wrong"}`)))

	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Len(t, rec.Records(), 1, "in-memory list unchanged after rejected wipe")
}

func TestWipeSuccess(t *testing.T) {
	srv, rec := newTestServer(t, true)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", submitBody("Ana")))
	require.Equal(t, http.StatusCreated, res.Code)

	res = httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/admin/wipe", strings.NewReader(`{"password":"producao2026"}`)))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, rec.Records())
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t, true)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/records", submitBody("Ana")))
	require.Equal(t, http.StatusCreated, res.Code)

	res = httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/stats?range=today", nil))

	require.Equal(t, http.StatusOK, res.Code)
	payload := decode(t, res)
	assert.InDelta(t, 0.30, payload["total"].(float64), 1e-9)
	assert.EqualValues(t, 3, payload["count"])
}

func TestStatsInvalidRange(t *testing.T) {
	srv, _ := newTestServer(t, true)

	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/stats?range=fortnight", nil))

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestStatus(t *testing.T) {
	srv, rec := newTestServer(t, false)
	rec.SetSyncing(true)

	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, res.Code)
	payload := decode(t, res)
	assert.Equal(t, false, payload["online"])
	assert.Equal(t, true, payload["syncing"])
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, true)

	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
}
