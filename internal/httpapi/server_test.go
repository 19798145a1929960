package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thewiningturtle/management-rating-app/internal/ledger"
	"github.com/thewiningturtle/management-rating-app/internal/pipeline"
	"github.com/thewiningturtle/management-rating-app/internal/scorer"
)

type fakeCaller struct {
	responses []string
	i         int
}

func (f *fakeCaller) GenerateJSON(context.Context, string) (string, error) {
	idx := f.i
	f.i++
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return "", nil
}

func newTestServer(t *testing.T, responses ...string) (http.Handler, ledger.Store) {
	t.Helper()
	dir := t.TempDir()
	store := ledger.NewCSVStore(filepath.Join(dir, "ledger.csv"))
	var sc *scorer.Scorer
	if responses != nil {
		sc = scorer.NewScorer(&fakeCaller{responses: responses})
	}
	p := pipeline.New(sc, store)
	return NewServer(p, store, filepath.Join(dir, "uploads")), store
}

func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func postManualRating(t *testing.T, h http.Handler, company, quarter string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{
		"company": company,
		"quarter": quarter,
		"mode":    "manual",
		"scores": `{"Strategy & Vision": 4, "Execution & Delivery": 3, "Communication Clarity": 4,
			"Capital Allocation": 4, "Governance & Integrity": 5, "Outlook & Realism": 4}`,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/ratings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRatingsManualMode(t *testing.T) {
	h, store := newTestServer(t)
	rec := postManualRating(t, h, "Ganesh Housing", "Q1 FY24")
	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Rating.Average != 4.0 {
		t.Fatalf("average = %v", res.Rating.Average)
	}
	entries, _ := store.Load()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
}

func TestRatingsManualModeRequiresScores(t *testing.T) {
	h, _ := newTestServer(t)
	body, contentType := multipartBody(t, map[string]string{
		"company": "A", "quarter": "Q1 FY24", "mode": "manual",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/ratings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRatingsMalformedScorerResponse(t *testing.T) {
	h, store := newTestServer(t, "not a dictionary", "not a dictionary", "not a dictionary")
	body, contentType := multipartBody(t, map[string]string{
		"company": "A", "quarter": "Q1 FY24", "mode": "auto",
		"transcript_hint": "ignored",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/ratings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 502 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	raw, _ := payload["raw"].(string)
	if !strings.Contains(raw, "not a dictionary") {
		t.Fatalf("raw text not surfaced: %v", payload)
	}
	entries, _ := store.Load()
	if len(entries) != 0 {
		t.Fatal("no entry may persist on a malformed response")
	}
}

func TestRatingsScorerUnavailable(t *testing.T) {
	h, _ := newTestServer(t) // nil scorer
	body, contentType := multipartBody(t, map[string]string{
		"company": "A", "quarter": "Q1 FY24", "mode": "auto",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/ratings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 503 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRatingsUndetectableIdentityIsCallerError(t *testing.T) {
	h, store := newTestServer(t, "not relevant")
	body, contentType := multipartBody(t, map[string]string{
		"mode": "auto",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/ratings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
	entries, _ := store.Load()
	if len(entries) != 0 {
		t.Fatalf("entries = %d", len(entries))
	}
}

func TestRatingsUnknownMode(t *testing.T) {
	h, _ := newTestServer(t)
	body, contentType := multipartBody(t, map[string]string{
		"company": "A", "quarter": "Q1 FY24", "mode": "psychic",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/ratings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHistoryAndTrends(t *testing.T) {
	h, _ := newTestServer(t)
	if rec := postManualRating(t, h, "Ganesh Housing", "Q1 FY24"); rec.Code != 200 {
		t.Fatalf("seed rating failed: %d", rec.Code)
	}
	if rec := postManualRating(t, h, "Ganesh Housing", "Q2 FY24"); rec.Code != 200 {
		t.Fatalf("seed rating failed: %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	if rec.Code != 200 {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history struct {
		Entries []ledger.Entry `json:"entries"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &history)
	if len(history.Entries) != 2 {
		t.Fatalf("entries = %d", len(history.Entries))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/trends/quarters", nil))
	var quarters struct {
		Trend []ledger.QuarterTrend `json:"trend"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &quarters)
	if len(quarters.Trend) != 2 || quarters.Trend[0].Quarter != "Q1 FY24" {
		t.Fatalf("quarter trend = %+v", quarters.Trend)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/trends/companies", nil))
	var companies struct {
		Trend []ledger.CompanyTrend `json:"trend"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &companies)
	if len(companies.Trend) != 1 || companies.Trend[0].Company != "Ganesh Housing" {
		t.Fatalf("company trend = %+v", companies.Trend)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/trends/category?name=Strategy+%26+Vision", nil))
	if rec.Code != 200 {
		t.Fatalf("category trend status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var category struct {
		Points []ledger.CategoryPoint `json:"points"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &category)
	if len(category.Points) != 2 {
		t.Fatalf("category points = %+v", category.Points)
	}
}

func TestTrendCategoryUnknownName(t *testing.T) {
	h, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/trends/category?name=Vibes", nil))
	if rec.Code != 400 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExportSingleRowCSV(t *testing.T) {
	h, _ := newTestServer(t)
	if rec := postManualRating(t, h, "Ganesh Housing", "Q1 FY24"); rec.Code != 200 {
		t.Fatalf("seed rating failed: %d", rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history/export?company=Ganesh+Housing&quarter=Q1+FY24", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("content type = %q", got)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("export lines = %d", len(lines))
	}
}

func TestExportMissingEntry(t *testing.T) {
	h, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history/export?company=Nobody&quarter=Q9+FY99", nil))
	if rec.Code != 404 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestResetClearsHistory(t *testing.T) {
	h, store := newTestServer(t)
	if rec := postManualRating(t, h, "Ganesh Housing", "Q1 FY24"); rec.Code != 200 {
		t.Fatalf("seed rating failed: %d", rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reset", nil))
	if rec.Code != 200 {
		t.Fatalf("reset status = %d", rec.Code)
	}
	entries, _ := store.Load()
	if len(entries) != 0 {
		t.Fatalf("entries after reset = %d", len(entries))
	}
	if trends := store.TrendByQuarter(); len(trends) != 0 {
		t.Fatalf("trends after reset = %+v", trends)
	}
}

func TestReportEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	if rec := postManualRating(t, h, "Ganesh Housing", "Q1 FY24"); rec.Code != 200 {
		t.Fatalf("seed rating failed: %d", rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/report?company=Ganesh+Housing&quarter=Q1+FY24", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	md, _ := payload["report_markdown"].(string)
	if !strings.Contains(md, "Management Evaluation Summary") {
		t.Fatalf("report = %q", md)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
}
