// Package pipeline orchestrates one rating run end to end: extract transcript
// text, score it, normalize and post-process the scores, persist the history
// entry, and build the report. All run state is carried in explicit request
// and result values; nothing ambient survives between runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/thewiningturtle/management-rating-app/internal/insider"
	"github.com/thewiningturtle/management-rating-app/internal/ledger"
	"github.com/thewiningturtle/management-rating-app/internal/rating"
	"github.com/thewiningturtle/management-rating-app/internal/report"
	"github.com/thewiningturtle/management-rating-app/internal/scorer"
	"github.com/thewiningturtle/management-rating-app/internal/transcript"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// ErrInvalidRequest marks a request the pipeline cannot run — missing
// identity, manual mode without scores. Callers match it with errors.Is and
// report it as caller error rather than system failure.
var ErrInvalidRequest = errors.New("invalid request")

// Request is the full input of one run. Exactly one of PDFPath and
// TranscriptText supplies the transcript in auto mode; manual mode needs
// neither.
type Request struct {
	Company        string
	Quarter        string
	Mode           Mode
	PDFPath        string
	TranscriptText string

	// Manual mode: caller-provided label->score mapping, normalized the same
	// way scorer output is.
	ManualScores map[string]any

	// Optional scoring context.
	ComparisonText  string
	NewsSnippets    []string
	InsiderTrades   []insider.Trade
	LeadershipNotes string
}

// Result is everything a caller needs to display or export one run.
type Result struct {
	Company          string        `json:"company"`
	Quarter          string        `json:"quarter"`
	Date             string        `json:"date"`
	Preview          string        `json:"preview,omitempty"`
	ExtractionMethod string        `json:"extraction_method,omitempty"`
	ExtractionFailed bool          `json:"extraction_failed,omitempty"`
	Rating           rating.Result `json:"rating"`
	Entry            ledger.Entry  `json:"entry"`
	ReportMarkdown   string        `json:"report_markdown"`
	Disclaimer       string        `json:"disclaimer"`
}

type Pipeline struct {
	scorer *scorer.Scorer
	store  ledger.Store

	// Serializes load-upsert-save so two requests in one process cannot
	// clobber each other. Cross-process writers remain unprotected.
	mu sync.Mutex

	now    func() time.Time
	tracer trace.Tracer
}

func New(sc *scorer.Scorer, store ledger.Store) *Pipeline {
	return &Pipeline{
		scorer: sc,
		store:  store,
		now:    time.Now,
		tracer: otel.Tracer("management-rating-app/pipeline"),
	}
}

func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("rating.mode", string(req.Mode))))
	defer span.End()

	res := Result{Disclaimer: rating.Disclaimer}

	if req.Mode == ModeManual && req.ManualScores == nil {
		return res, fmt.Errorf("%w: manual mode requires a scores map", ErrInvalidRequest)
	}

	text, method, extractionFailed := p.extract(ctx, req)
	res.ExtractionMethod = method
	res.ExtractionFailed = extractionFailed
	res.Preview = transcript.Preview(text)

	company := strings.TrimSpace(req.Company)
	if company == "" {
		company = transcript.DetectCompany(text)
	}
	quarter := strings.TrimSpace(req.Quarter)
	if quarter == "" {
		quarter = transcript.DetectQuarter(text)
	}
	if company == "" {
		return res, fmt.Errorf("%w: company was neither supplied nor detected in the transcript", ErrInvalidRequest)
	}
	if quarter == "" {
		return res, fmt.Errorf("%w: quarter was neither supplied nor detected in the transcript", ErrInvalidRequest)
	}
	res.Company = company
	res.Quarter = quarter

	insiderFlags := insider.Flags(req.InsiderTrades)

	resp, err := p.score(ctx, req, text, insiderFlags)
	if err != nil {
		return res, err
	}

	rec := rating.Normalize(resp.Ratings)
	just := rating.NormalizeJustifications(resp.Justifications)
	redFlags := append(append([]string{}, resp.RedFlags...), insiderFlags...)
	res.Rating = rating.Finalize(rec, just, redFlags)

	entry := ledger.Entry{
		Date:    p.now().Format("2006-01-02"),
		Company: company,
		Quarter: quarter,
		Scores:  res.Rating.Scores,
		Average: res.Rating.Average,
	}
	if err := p.persist(ctx, entry); err != nil {
		return res, err
	}
	res.Date = entry.Date
	res.Entry = entry
	res.ReportMarkdown = report.Build(entry, res.Rating)
	return res, nil
}

// extract resolves the transcript text. Extraction failure is non-fatal: the
// run degrades to empty text and low-confidence scores instead of halting.
func (p *Pipeline) extract(ctx context.Context, req Request) (text, method string, failed bool) {
	_, span := p.tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	if strings.TrimSpace(req.TranscriptText) != "" {
		return req.TranscriptText, "inline", false
	}
	if req.PDFPath == "" {
		return "", "", false
	}
	extracted, err := transcript.ExtractPDFText(ctx, req.PDFPath)
	if err != nil {
		log.Printf("transcript extraction failed, proceeding on empty text: %v", err)
		return "", "", true
	}
	return extracted.Text, extracted.Method, false
}

func (p *Pipeline) score(ctx context.Context, req Request, text string, insiderFlags []string) (scorer.Response, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.score")
	defer span.End()

	if req.Mode == ModeManual {
		return scorer.Response{Ratings: req.ManualScores}, nil
	}
	if p.scorer == nil {
		return scorer.Response{}, scorer.ErrUnavailable
	}
	return p.scorer.Score(ctx, scorer.Request{
		Transcript:      text,
		ComparisonText:  req.ComparisonText,
		NewsSnippets:    req.NewsSnippets,
		InsiderFlags:    insiderFlags,
		LeadershipNotes: req.LeadershipNotes,
	})
}

// persist commits the entry: load, upsert, save, under one lock. A failed
// save is returned, never masked; the entry is fully written or not at all.
func (p *Pipeline) persist(ctx context.Context, entry ledger.Entry) error {
	_, span := p.tracer.Start(ctx, "pipeline.persist",
		trace.WithAttributes(
			attribute.String("rating.company", entry.Company),
			attribute.String("rating.quarter", entry.Quarter)))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.store.Load(); err != nil {
		return fmt.Errorf("ledger load: %w", err)
	}
	if err := p.store.Upsert(entry); err != nil {
		return fmt.Errorf("ledger upsert: %w", err)
	}
	if err := p.store.Save(); err != nil {
		return fmt.Errorf("ledger save: %w", err)
	}
	return nil
}
