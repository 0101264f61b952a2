// Package api serves the scan pipeline and stored records over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"complyscan/internal/domain"
	"complyscan/internal/engine"
	"complyscan/internal/extract"
	"complyscan/internal/fetcher"
	"complyscan/internal/rules"
	"complyscan/internal/store"
)

const maxRequestBytes = 1 << 20

// Scanner runs submissions and re-evaluations. *engine.Engine satisfies it.
type Scanner interface {
	Submit(ctx context.Context, rawURL string) (*domain.ScanRecord, error)
	Evaluate(ctx context.Context, productID string) (*rules.ComplianceResult, error)
}

// Previewer extracts a page without storing anything. *extract.Extractor
// satisfies it.
type Previewer interface {
	Extract(ctx context.Context, rawURL string) (*extract.Page, error)
	Markdown(ctx context.Context, rawURL string) (string, error)
}

type Server struct {
	scanner Scanner
	store   store.Store
	preview Previewer
}

func New(scanner Scanner, st store.Store, preview Previewer) *Server {
	return &Server{scanner: scanner, store: st, preview: preview}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/products/scan", s.handleScan)
	mux.HandleFunc("GET /api/products", s.handleListProducts)
	mux.HandleFunc("GET /api/products/{id}", s.handleGetProduct)
	mux.HandleFunc("POST /api/compliance/scan/{id}", s.handleEvaluate)
	mux.HandleFunc("GET /api/compliance/report", s.handleReport)
	mux.HandleFunc("POST /api/scrape/test", s.handleScrapeTest)
	return logRequests(mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

type urlRequest struct {
	URL      string `json:"url"`
	Markdown bool   `json:"markdown,omitempty"`
}

type productSummary struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Images    int    `json:"images"`
	Score     *int   `json:"score,omitempty"`
	Status    string `json:"status,omitempty"`
}

type reportEntry struct {
	ProductID         string                  `json:"productId"`
	Title             string                  `json:"title"`
	ComplianceResults *rules.ComplianceResult `json:"complianceResults"`
	ScanDate          time.Time               `json:"scanDate"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "complyscan API is running"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeURLRequest(w, r)
	if !ok {
		return
	}

	rec, err := s.scanner.Submit(r.Context(), req.URL)
	if rec == nil {
		writeScanError(w, err)
		return
	}
	if err != nil {
		// The record was computed but not stored.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"product": summarize(rec),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Product scanned successfully",
		"product": summarize(rec),
	})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}

	recs, err := s.store.List(r.Context(), opts)
	if err != nil {
		internalError(w, "list products", err)
		return
	}
	if recs == nil {
		recs = []*domain.ScanRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": recs})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		internalError(w, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": rec})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.scanner.Evaluate(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	var perr *engine.PersistenceError
	if err != nil && !errors.As(err, &perr) {
		internalError(w, "evaluate product", err)
		return
	}
	if perr != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":             err.Error(),
			"productId":         id,
			"complianceResults": res,
		})
		return
	}

	product := map[string]string{"id": id}
	if rec, gerr := s.store.Get(r.Context(), id); gerr == nil {
		product["title"] = rec.Title
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"productId":         id,
		"product":           product,
		"complianceResults": res,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List(r.Context(), store.ListOptions{})
	if err != nil {
		internalError(w, "list products", err)
		return
	}
	summary, err := s.store.Summary(r.Context())
	if err != nil {
		internalError(w, "summarize products", err)
		return
	}

	products := make([]reportEntry, 0, len(recs))
	for _, rec := range recs {
		products = append(products, reportEntry{
			ProductID:         rec.ProductID,
			Title:             rec.Title,
			ComplianceResults: rec.Compliance,
			ScanDate:          rec.ScannedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary, "products": products})
}

func (s *Server) handleScrapeTest(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeURLRequest(w, r)
	if !ok {
		return
	}

	page, err := s.preview.Extract(r.Context(), req.URL)
	if err != nil {
		writeScanError(w, err)
		return
	}
	body := map[string]any{"success": true, "data": page}
	if req.Markdown {
		md, err := s.preview.Markdown(r.Context(), req.URL)
		if err != nil {
			writeScanError(w, err)
			return
		}
		body["markdown"] = md
	}
	writeJSON(w, http.StatusOK, body)
}

func decodeURLRequest(w http.ResponseWriter, r *http.Request) (urlRequest, bool) {
	var req urlRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return req, false
	}
	if _, err := extract.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid URL format")
		return req, false
	}
	return req, true
}

// writeScanError maps pipeline failures to status codes.
func writeScanError(w http.ResponseWriter, err error) {
	var ie *extract.InvalidURLError
	var fe *fetcher.FetchError
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, "Invalid URL format")
	case errors.As(err, &fe):
		if !fe.RetryAt.IsZero() {
			secs := int(math.Ceil(time.Until(fe.RetryAt).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		}
		if fe.Timeout() {
			writeError(w, http.StatusGatewayTimeout, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		internalError(w, "scan", err)
	}
}

func summarize(rec *domain.ScanRecord) productSummary {
	ps := productSummary{ProductID: rec.ProductID, Title: rec.Title, Images: len(rec.Images)}
	if rec.Evaluated() {
		score := rec.Compliance.Score
		ps.Score = &score
		ps.Status = string(rec.Compliance.Status)
	}
	return ps
}

func internalError(w http.ResponseWriter, op string, err error) {
	slog.Error("api request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("api request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
