package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/thewiningturtle/management-rating-app/internal/insider"
	"github.com/thewiningturtle/management-rating-app/internal/ledger"
	"github.com/thewiningturtle/management-rating-app/internal/pipeline"
	"github.com/thewiningturtle/management-rating-app/internal/scorer"
)

func main() {
	var (
		pdfPath        = flag.String("pdf", "", "Path to earnings call transcript PDF")
		transcriptPath = flag.String("transcript", "", "Path to plain-text transcript (alternative to -pdf)")
		company        = flag.String("company", "", "Company name (detected from transcript when empty)")
		quarter        = flag.String("quarter", "", "Quarter label, e.g. \"Q1 FY24\" (detected when empty)")
		mode           = flag.String("mode", "auto", "Rating mode: auto (LLM) or manual")
		scoresJSON     = flag.String("scores", "", "Manual mode: JSON object mapping category to score")
		ledgerPath     = flag.String("ledger", "rating_history.csv", "Path to the CSV rating ledger")
		dbPath         = flag.String("db", "", "Optional sqlite database path (used instead of the CSV ledger)")
		insiderPath    = flag.String("insider-trades", "", "Optional CSV of insider trades")
		comparisonPath = flag.String("comparison", "", "Optional path to a prior-quarter transcript for comparison")
		newsPath       = flag.String("news", "", "Optional path to newline-separated news snippets")
		notes          = flag.String("notes", "", "Optional leadership change notes")
		exportPath     = flag.String("export", "", "Optional path to write the run's ledger row as CSV")
		reportPath     = flag.String("report", "", "Path to write the report markdown (defaults to stdout)")
	)
	flag.Parse()

	req := pipeline.Request{
		Company:         strings.TrimSpace(*company),
		Quarter:         strings.TrimSpace(*quarter),
		Mode:            pipeline.Mode(*mode),
		PDFPath:         *pdfPath,
		LeadershipNotes: *notes,
	}

	switch req.Mode {
	case pipeline.ModeAuto, pipeline.ModeManual:
	default:
		log.Fatalf("unknown -mode %q (want auto or manual)", *mode)
	}

	if *transcriptPath != "" {
		text, err := os.ReadFile(*transcriptPath)
		if err != nil {
			log.Fatalf("read transcript: %v", err)
		}
		req.TranscriptText = string(text)
	}
	if *scoresJSON != "" {
		if err := json.Unmarshal([]byte(*scoresJSON), &req.ManualScores); err != nil {
			log.Fatalf("decode -scores JSON: %v", err)
		}
	}
	if req.Mode == pipeline.ModeManual && req.ManualScores == nil {
		log.Fatal("manual mode requires -scores")
	}
	if *comparisonPath != "" {
		text, err := os.ReadFile(*comparisonPath)
		if err != nil {
			log.Fatalf("read comparison transcript: %v", err)
		}
		req.ComparisonText = string(text)
	}
	if *newsPath != "" {
		text, err := os.ReadFile(*newsPath)
		if err != nil {
			log.Fatalf("read news snippets: %v", err)
		}
		for _, line := range strings.Split(string(text), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				req.NewsSnippets = append(req.NewsSnippets, line)
			}
		}
	}
	if *insiderPath != "" {
		f, err := os.Open(*insiderPath)
		if err != nil {
			log.Fatalf("open insider trades: %v", err)
		}
		trades, err := insider.ReadTrades(f)
		f.Close()
		if err != nil {
			log.Fatalf("read insider trades: %v", err)
		}
		req.InsiderTrades = trades
	}

	store, closeStore, err := openStore(*ledgerPath, *dbPath)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer closeStore()

	var sc *scorer.Scorer
	if req.Mode == pipeline.ModeAuto {
		caller, err := scorer.NewAnthropicCallerFromEnv()
		if err != nil {
			log.Fatalf("scorer: %v", err)
		}
		sc = scorer.NewScorer(caller)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p := pipeline.New(sc, store)
	res, err := p.Run(ctx, req)
	if err != nil {
		var malformed *scorer.MalformedResponseError
		if errors.As(err, &malformed) {
			log.Printf("raw model output:\n%s", malformed.Raw)
		}
		log.Fatalf("rating run: %v", err)
	}

	if res.ExtractionFailed {
		log.Printf("warning: transcript extraction failed, scored without transcript text")
	}
	log.Printf("rated %s %s: average %.4f", res.Company, res.Quarter, res.Rating.Average)

	if err := writeReport(*reportPath, res.ReportMarkdown); err != nil {
		log.Fatalf("write report: %v", err)
	}
	if *exportPath != "" {
		if err := os.WriteFile(*exportPath, ledger.ExportEntryCSV(res.Entry), 0o644); err != nil {
			log.Fatalf("write export: %v", err)
		}
	}
}

func openStore(ledgerPath, dbPath string) (ledger.Store, func(), error) {
	if dbPath != "" {
		s, err := ledger.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	return ledger.NewCSVStore(ledgerPath), func() {}, nil
}

func writeReport(path, markdown string) error {
	if path == "" {
		_, err := fmt.Print(markdown)
		return err
	}
	return os.WriteFile(path, []byte(markdown), 0o644)
}
