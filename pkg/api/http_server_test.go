package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sunsetdb/pkg/common"
	"sunsetdb/pkg/core"
	"sunsetdb/pkg/storage"
)

func newTestServer(t *testing.T) (*Server, *core.Engine) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sunset.db")
	if err := storage.CreateLogFile(path); err != nil {
		t.Fatalf("create log: %v", err)
	}
	store, err := storage.Open(path, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	engine := core.NewEngine(store, 16)
	t.Cleanup(func() { engine.Close() })
	return NewServer(engine, time.Second), engine
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPutGetDelete(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/api/get?key=a", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get missing: expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/put", `{"key":"a","value":"hello world"}`); rec.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d %s", rec.Code, rec.Body)
	}

	rec := do(t, h, http.MethodGet, "/api/get?key=a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var got struct {
		Key   string `json:"key"`
		Value string `json:"value"`
		Found bool   `json:"found"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if !got.Found || got.Value != "hello world" {
		t.Fatalf("unexpected get response %+v", got)
	}

	if rec := do(t, h, http.MethodDelete, "/api/del?key=a", ""); rec.Code != http.StatusOK {
		t.Fatalf("del: expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/get?key=a", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rec.Code)
	}
}

func TestBadRequests(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	cases := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodGet, "/api/get", "", http.StatusBadRequest},
		{http.MethodGet, "/api/put", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/put", "not json", http.StatusBadRequest},
		{http.MethodPost, "/api/put", `{"key":"","value":"v"}`, http.StatusBadRequest},
		{http.MethodGet, "/api/del?key=a", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/scan?limit=x", "", http.StatusBadRequest},
		{http.MethodPost, "/api/backup", "", http.StatusMethodNotAllowed},
	}
	for _, c := range cases {
		if rec := do(t, h, c.method, c.target, c.body); rec.Code != c.want {
			t.Errorf("%s %s: expected %d, got %d", c.method, c.target, c.want, rec.Code)
		}
	}
}

func TestScanRangeAndLimit(t *testing.T) {
	s, engine := newTestServer(t)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c", "d"} {
		if err := engine.Put(ctx, []byte(k), []byte("v"+k)); err != nil {
			t.Fatal(err)
		}
	}
	engine.Delete(ctx, []byte("c"))

	rec := do(t, s.Handler(), http.MethodGet, "/api/scan?start=b&end=z&limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("scan: expected 200, got %d", rec.Code)
	}
	var resp struct {
		Count   int `json:"count"`
		Records []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode scan response: %v", err)
	}
	if resp.Count != 2 || resp.Records[0].Key != "b" || resp.Records[1].Key != "d" {
		t.Fatalf("unexpected scan result %+v", resp)
	}
	if resp.Records[1].Value != "vd" {
		t.Fatalf("unexpected value %q", resp.Records[1].Value)
	}
}

func TestHandleMetricsExposesPrometheusFormat(t *testing.T) {
	s, engine := newTestServer(t)
	ctx := context.Background()
	engine.Put(ctx, []byte("one"), []byte("1"))
	engine.Get(ctx, []byte("one"))
	engine.Get(ctx, []byte("two"))

	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	want := []string{
		"sunset_reads_total 2",
		"sunset_writes_total 1",
		"sunset_hits_total 1",
		"sunset_misses_total 1",
		"sunset_log_records 1",
		"sunset_log_size ",
		"sunset_rw_ratio ",
		"sunset_pending_commands ",
	}
	for _, m := range want {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metrics output to contain %q, body=%s", m, body)
		}
	}
	if strings.Contains(body, "sunset_log_path") || strings.Contains(body, "sunset_sync") {
		t.Fatalf("non-numeric stats must be skipped, body=%s", body)
	}
}

func TestBackupAndRestoreHandlers(t *testing.T) {
	src, srcEngine := newTestServer(t)
	ctx := context.Background()
	srcEngine.Put(ctx, []byte("a"), []byte("1"))
	srcEngine.Put(ctx, []byte("b"), []byte{0x00, '\r', '\n', 0xff})
	srcEngine.Put(ctx, []byte("gone"), []byte("x"))
	srcEngine.Delete(ctx, []byte("gone"))

	backupRec := do(t, src.Handler(), http.MethodGet, "/api/backup", "")
	if backupRec.Code != http.StatusOK {
		t.Fatalf("backup expected 200, got %d", backupRec.Code)
	}
	var backup backupPayload
	if err := json.Unmarshal(backupRec.Body.Bytes(), &backup); err != nil {
		t.Fatalf("decode backup response: %v", err)
	}
	if backup.RecordCount != 2 || len(backup.Records) != 2 {
		t.Fatalf("expected 2 records in backup, got count=%d len=%d", backup.RecordCount, len(backup.Records))
	}

	dst, dstEngine := newTestServer(t)
	restoreRec := do(t, dst.Handler(), http.MethodPost, "/api/restore", backupRec.Body.String())
	if restoreRec.Code != http.StatusOK {
		t.Fatalf("restore expected 200, got %d %s", restoreRec.Code, restoreRec.Body)
	}

	if v, err := dstEngine.Get(ctx, []byte("a")); err != nil || string(v) != "1" {
		t.Fatalf("expected restored a='1', got %q %v", v, err)
	}
	if v, err := dstEngine.Get(ctx, []byte("b")); err != nil || !bytes.Equal(v, []byte{0x00, '\r', '\n', 0xff}) {
		t.Fatalf("expected binary value to survive restore, got %q %v", v, err)
	}
	if _, err := dstEngine.Get(ctx, []byte("gone")); err == nil {
		t.Fatal("deleted key must not be restored")
	}
}

// delayedStore slows every Put down by delay.
type delayedStore struct {
	core.Store
	delay time.Duration
}

func (s *delayedStore) Put(key, value []byte) error {
	time.Sleep(s.delay)
	return s.Store.Put(key, value)
}

func TestRestoreOutlastsRequestTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sunset.db")
	if err := storage.CreateLogFile(path); err != nil {
		t.Fatalf("create log: %v", err)
	}
	store, err := storage.Open(path, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	engine := core.NewEngine(&delayedStore{Store: store, delay: 20 * time.Millisecond}, 4)
	defer engine.Close()
	s := NewServer(engine, 50*time.Millisecond)

	// each record fits the timeout, the whole backup does not
	var backup backupPayload
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		backup.Records = append(backup.Records, common.Record{Key: []byte(k), Value: []byte("v" + k)})
	}
	backup.RecordCount = len(backup.Records)
	body, err := json.Marshal(backup)
	if err != nil {
		t.Fatal(err)
	}

	rec := do(t, s.Handler(), http.MethodPost, "/api/restore", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("restore expected 200, got %d %s", rec.Code, rec.Body)
	}
	var resp struct {
		Restored int `json:"restored"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode restore response: %v", err)
	}
	if resp.Restored != 5 {
		t.Fatalf("expected 5 restored records, got %d", resp.Restored)
	}
	if v, err := engine.Get(context.Background(), []byte("e")); err != nil || string(v) != "ve" {
		t.Fatalf("expected e='ve', got %q %v", v, err)
	}
}

func TestClosedEngineIsUnavailable(t *testing.T) {
	s, engine := newTestServer(t)
	engine.Close()
	if rec := do(t, s.Handler(), http.MethodGet, "/api/stats", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
