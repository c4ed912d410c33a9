package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"sunsetdb/pkg/common"
	"sunsetdb/pkg/core"
	"sunsetdb/pkg/storage"
)

// Server is the HTTP admin surface. Every handler goes through the engine,
// so HTTP writes are ordered with TCP writes.
type Server struct {
	engine  *core.Engine
	timeout time.Duration
	http    *http.Server
}

func NewServer(engine *core.Engine, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &Server{engine: engine, timeout: timeout}
	s.http = &http.Server{Handler: s.Handler()}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/get", s.handleGet)
	mux.HandleFunc("/api/put", s.handlePut)
	mux.HandleFunc("/api/del", s.handleDel)
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/backup", s.handleBackup)
	mux.HandleFunc("/api/restore", s.handleRestore)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

// Start blocks serving addr until Shutdown.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("[API] Server listening on %s...", l.Addr())
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// httpError maps engine and storage errors onto status codes.
func httpError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		code = http.StatusNotFound
	case errors.Is(err, storage.ErrKeyIsEmpty), errors.Is(err, storage.ErrValueTooLarge):
		code = http.StatusBadRequest
	case errors.Is(err, storage.ErrReadOnly):
		code = http.StatusForbidden
	case errors.Is(err, core.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	http.Error(w, err.Error(), code)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Invalid key", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	start := time.Now()
	val, err := s.engine.Get(ctx, []byte(key))
	duration := time.Since(start)
	if err != nil {
		httpError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"key":        key,
		"value":      string(val),
		"found":      true,
		"latency_ns": duration.Nanoseconds(),
	})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.engine.Put(ctx, []byte(req.Key), []byte(req.Value)); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleDel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Invalid key", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.engine.Delete(ctx, []byte(key)); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	q := r.URL.Query()
	var start, end []byte
	if v := q.Get("start"); v != "" {
		start = []byte(v)
	}
	if v := q.Get("end"); v != "" {
		end = []byte(v)
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	records, err := s.engine.Scan(ctx, start, end, limit)
	if err != nil {
		httpError(w, err)
		return
	}

	type row struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	rows := make([]row, len(records))
	for i, rec := range records {
		rows[i] = row{Key: string(rec.Key), Value: string(rec.Value)}
	}
	writeJSON(w, map[string]interface{}{
		"count":   len(rows),
		"records": rows,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	ctx, cancel := s.requestContext(r)
	defer cancel()
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, stats)
}

type backupPayload struct {
	RecordCount int             `json:"record_count"`
	Records     []common.Record `json:"records"`
}

// handleBackup dumps every live record. Keys and values are base64 in JSON,
// so binary data survives a restore.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	records, err := s.engine.Scan(ctx, nil, nil, 0)
	if err != nil {
		httpError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", "attachment;filename=sunset_backup.json")
	writeJSON(w, backupPayload{RecordCount: len(records), Records: records})
}

// handleRestore appends every record of a backup. Existing keys not in the
// backup are left alone. The timeout applies to each record, so a large
// backup is bounded only by the client's own request context.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req backupPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}

	restored := 0
	for _, rec := range req.Records {
		ctx, cancel := s.requestContext(r)
		err := s.engine.Put(ctx, rec.Key, rec.Value)
		cancel()
		if err != nil {
			httpError(w, fmt.Errorf("restore stopped after %d records: %w", restored, err))
			return
		}
		restored++
	}
	log.Printf("[API] Restored %d records", restored)
	writeJSON(w, map[string]interface{}{"status": "ok", "restored": restored})
}

// handleMetrics exposes the stats map in the Prometheus text format. Only
// numeric entries are exported.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		httpError(w, err)
		return
	}

	names := make([]string, 0, len(stats))
	for k := range stats {
		names = append(names, k)
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	for _, name := range names {
		var v float64
		switch n := stats[name].(type) {
		case int:
			v = float64(n)
		case int64:
			v = float64(n)
		case uint:
			v = float64(n)
		case uint64:
			v = float64(n)
		case float64:
			v = n
		default:
			continue
		}
		fmt.Fprintf(w, "sunset_%s %v\n", name, v)
	}
}
