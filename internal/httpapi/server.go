// Package httpapi exposes the rating pipeline and history ledger over HTTP.
// Uploads, buttons, and tabs in a frontend map onto these endpoints; the
// handlers themselves stay thin over the pipeline.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/thewiningturtle/management-rating-app/internal/insider"
	"github.com/thewiningturtle/management-rating-app/internal/ledger"
	"github.com/thewiningturtle/management-rating-app/internal/pipeline"
	"github.com/thewiningturtle/management-rating-app/internal/rating"
	"github.com/thewiningturtle/management-rating-app/internal/report"
	"github.com/thewiningturtle/management-rating-app/internal/scorer"
)

const maxUploadBytes = 32 << 20

type Server struct {
	pipeline  *pipeline.Pipeline
	store     ledger.Store
	uploadDir string
}

func NewServer(p *pipeline.Pipeline, store ledger.Store, uploadDir string) http.Handler {
	s := &Server{pipeline: p, store: store, uploadDir: uploadDir}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ratings", s.handleRatings)
	mux.HandleFunc("/v1/history", s.handleHistory)
	mux.HandleFunc("/v1/history/export", s.handleExport)
	mux.HandleFunc("/v1/trends/quarters", s.handleTrendQuarters)
	mux.HandleFunc("/v1/trends/companies", s.handleTrendCompanies)
	mux.HandleFunc("/v1/trends/category", s.handleTrendCategory)
	mux.HandleFunc("/v1/report", s.handleReport)
	mux.HandleFunc("/v1/reset", s.handleReset)
	mux.HandleFunc("/v1/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func (s *Server) handleRatings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, 400, "invalid multipart form")
		return
	}

	req := pipeline.Request{
		Company:         strings.TrimSpace(r.FormValue("company")),
		Quarter:         strings.TrimSpace(r.FormValue("quarter")),
		Mode:            pipeline.Mode(strings.TrimSpace(r.FormValue("mode"))),
		ComparisonText:  r.FormValue("comparison_text"),
		LeadershipNotes: r.FormValue("leadership_notes"),
	}
	if req.Mode == "" {
		req.Mode = pipeline.ModeAuto
	}
	if req.Mode != pipeline.ModeAuto && req.Mode != pipeline.ModeManual {
		writeError(w, 400, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}
	for _, line := range strings.Split(r.FormValue("news"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			req.NewsSnippets = append(req.NewsSnippets, line)
		}
	}

	if raw := strings.TrimSpace(r.FormValue("scores")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.ManualScores); err != nil {
			writeError(w, 400, "scores field is not a JSON object")
			return
		}
	}
	if req.Mode == pipeline.ModeManual && req.ManualScores == nil {
		writeError(w, 400, "manual mode requires a scores field")
		return
	}

	if file, _, err := r.FormFile("insider_trades"); err == nil {
		trades, terr := insider.ReadTrades(file)
		file.Close()
		if terr != nil {
			writeError(w, 400, terr.Error())
			return
		}
		req.InsiderTrades = trades
	}

	if path, err := s.saveUpload(r); err != nil {
		writeError(w, 500, err.Error())
		return
	} else if path != "" {
		req.PDFPath = path
	}

	res, err := s.pipeline.Run(r.Context(), req)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	writeJSON(w, 200, res)
}

// saveUpload stores the transcript PDF under the upload directory. An absent
// file field is fine; auto mode can run on inline text or degrade to empty.
func (s *Server) saveUpload(r *http.Request) (string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil
	}
	defer file.Close()
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare upload dir: %w", err)
	}
	dst := filepath.Join(s.uploadDir, filepath.Base(header.Filename))
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to save uploaded file: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to write uploaded file: %w", err)
	}
	out.Close()
	return dst, nil
}

func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var malformed *scorer.MalformedResponseError
	switch {
	case errors.Is(err, scorer.ErrUnavailable):
		writeError(w, 503, err.Error())
	case errors.As(err, &malformed):
		writeJSON(w, 502, map[string]any{
			"error": "scorer returned a malformed response",
			"raw":   malformed.Raw,
		})
	case errors.Is(err, pipeline.ErrInvalidRequest):
		writeError(w, 400, err.Error())
	default:
		log.Printf("rating run failed: %v", err)
		writeError(w, 500, err.Error())
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entries, err := s.store.Load()
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, 200, map[string]any{"entries": entries})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entry, ok := s.findEntry(w, r)
	if !ok {
		return
	}
	filename := fmt.Sprintf("%s_management_rating.csv", strings.ReplaceAll(entry.Company, " ", "_"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(ledger.ExportEntryCSV(entry))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entry, ok := s.findEntry(w, r)
	if !ok {
		return
	}
	// Justifications are not persisted; a regenerated report carries scores,
	// average, and verdict only.
	md := report.Build(entry, rating.Result{Scores: entry.Scores, Average: entry.Average})
	writeJSON(w, 200, map[string]any{
		"company":         entry.Company,
		"quarter":         entry.Quarter,
		"report_markdown": md,
	})
}

func (s *Server) findEntry(w http.ResponseWriter, r *http.Request) (ledger.Entry, bool) {
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	quarter := strings.TrimSpace(r.URL.Query().Get("quarter"))
	if company == "" || quarter == "" {
		writeError(w, 400, "company and quarter query parameters are required")
		return ledger.Entry{}, false
	}
	if _, err := s.store.Load(); err != nil {
		writeError(w, 500, err.Error())
		return ledger.Entry{}, false
	}
	entry, ok := s.store.Find(ledger.Key{Company: company, Quarter: quarter})
	if !ok {
		writeError(w, 404, fmt.Sprintf("no rating for %s %s", company, quarter))
		return ledger.Entry{}, false
	}
	return entry, true
}

func (s *Server) handleTrendQuarters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.store.Load(); err != nil {
		writeError(w, 500, err.Error())
		return
	}
	trends := s.store.TrendByQuarter()
	if trends == nil {
		trends = []ledger.QuarterTrend{}
	}
	writeJSON(w, 200, map[string]any{"trend": trends})
}

func (s *Server) handleTrendCompanies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.store.Load(); err != nil {
		writeError(w, 500, err.Error())
		return
	}
	trends := s.store.TrendByCompany()
	if trends == nil {
		trends = []ledger.CompanyTrend{}
	}
	writeJSON(w, 200, map[string]any{"trend": trends})
}

func (s *Server) handleTrendCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, 400, "name query parameter is required")
		return
	}
	var cat rating.Category
	for _, c := range rating.Schema() {
		if strings.EqualFold(string(c), name) {
			cat = c
			break
		}
	}
	if cat == "" {
		writeError(w, 400, fmt.Sprintf("unknown category %q", name))
		return
	}
	if _, err := s.store.Load(); err != nil {
		writeError(w, 500, err.Error())
		return
	}
	points := s.store.TrendByCategory(cat)
	if points == nil {
		points = []ledger.CategoryPoint{}
	}
	writeJSON(w, 200, map[string]any{"category": cat, "points": points})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.store.Reset(); err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{"ok": true})
}
