package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/thewiningturtle/management-rating-app/internal/insider"
	"github.com/thewiningturtle/management-rating-app/internal/ledger"
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

func newTestPipeline(t *testing.T, responses ...string) (*Pipeline, *ledger.CSVStore) {
	t.Helper()
	store := ledger.NewCSVStore(filepath.Join(t.TempDir(), "ledger.csv"))
	var sc *scorer.Scorer
	if responses != nil {
		sc = scorer.NewScorer(&fakeCaller{responses: responses})
	}
	p := New(sc, store)
	p.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	return p, store
}

const goodStructuredResponse = `{
	"ratings": {
		"Strategy & Vision": 5, "Execution & Delivery": 3, "Communication Clarity": 4,
		"Capital Allocation": 4, "Governance & Integrity": 2, "Outlook & Realism": 5
	},
	"justification": {
		"Strategy & Vision": "multi-year land bank monetization plan with named milestones",
		"Execution & Delivery": "two project handovers slipped a quarter against guidance",
		"Communication Clarity": "direct answers to analyst questions, little hedging",
		"Capital Allocation": "debt reduction prioritized over new acquisitions this year",
		"Governance & Integrity": "related-party transaction disclosed only after questioning",
		"Outlook & Realism": "guidance assumes approvals that are not yet filed"
	},
	"red_flags": []
}`

func TestRunAutoModePersistsEntry(t *testing.T) {
	p, store := newTestPipeline(t, goodStructuredResponse)
	res, err := p.Run(context.Background(), Request{
		Company:        "Ganesh Housing",
		Quarter:        "Q1 FY24",
		Mode:           ModeAuto,
		TranscriptText: "management discussion of the quarter",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// (5+3+4+4+2+5)/6 = 3.8333
	if res.Rating.Average != 3.8333 {
		t.Fatalf("average = %v", res.Rating.Average)
	}
	if res.Date != "2024-05-10" {
		t.Fatalf("date = %q", res.Date)
	}
	if !strings.Contains(res.ReportMarkdown, "Ganesh Housing") {
		t.Fatal("report missing company")
	}

	entries, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Key() != (ledger.Key{Company: "Ganesh Housing", Quarter: "Q1 FY24"}) {
		t.Fatalf("key = %+v", entries[0].Key())
	}
}

func TestRunMalformedScorerOutputPersistsNothing(t *testing.T) {
	p, store := newTestPipeline(t, "not a dictionary", "not a dictionary", "not a dictionary")
	_, err := p.Run(context.Background(), Request{
		Company:        "Ganesh Housing",
		Quarter:        "Q1 FY24",
		Mode:           ModeAuto,
		TranscriptText: "text",
	})
	var me *scorer.MalformedResponseError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
	entries, _ := store.Load()
	if len(entries) != 0 {
		t.Fatalf("entries = %d, want 0 after malformed response", len(entries))
	}
}

func TestRunScorerUnavailable(t *testing.T) {
	p, store := newTestPipeline(t) // nil scorer
	_, err := p.Run(context.Background(), Request{
		Company:        "A",
		Quarter:        "Q1 FY24",
		Mode:           ModeAuto,
		TranscriptText: "text",
	})
	if !errors.Is(err, scorer.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	entries, _ := store.Load()
	if len(entries) != 0 {
		t.Fatal("nothing should persist when the scorer is unavailable")
	}
}

func TestRunManualModeSkipsScorerAndGate(t *testing.T) {
	p, store := newTestPipeline(t) // nil scorer: manual mode must not need it
	res, err := p.Run(context.Background(), Request{
		Company: "Ganesh Housing",
		Quarter: "Q2 FY24",
		Mode:    ModeManual,
		ManualScores: map[string]any{
			"Strategy & Vision": 4, "Execution & Delivery": 4, "Communication Clarity": 4,
			"Capital Allocation": 4, "Governance & Integrity": 4, "Outlook & Realism": 4,
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rating.Average != 4.0 {
		t.Fatalf("average = %v", res.Rating.Average)
	}
	if res.Rating.GatedCount != 0 {
		t.Fatal("manual mode must not run the hygiene gate")
	}
	entries, _ := store.Load()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
}

func TestRunInsiderFlagsJoinRedFlags(t *testing.T) {
	p, _ := newTestPipeline(t, goodStructuredResponse)
	res, err := p.Run(context.Background(), Request{
		Company:        "Ganesh Housing",
		Quarter:        "Q1 FY24",
		Mode:           ModeAuto,
		TranscriptText: "text",
		InsiderTrades: []insider.Trade{
			{InsiderName: "A. Patel", SharesSold: 150000, Date: "2024-02-01"},
			{InsiderName: "B. Shah", SharesSold: 200000, Date: "2024-02-02"},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rating.RedFlags) != 2 {
		t.Fatalf("red flags = %v", res.Rating.RedFlags)
	}
	// Two insider flags arm the override; pre-override mean 3.8333 > 3.5, so
	// the two fives clamp to 3: (3+3+4+4+2+3)/6 = 3.1667
	if !res.Rating.OverrideFired {
		t.Fatal("override should fire on two insider flags with a high mean")
	}
	if res.Rating.Average != 3.1667 {
		t.Fatalf("post-override average = %v", res.Rating.Average)
	}
}

func TestRunRequiresCompanyAndQuarter(t *testing.T) {
	p, _ := newTestPipeline(t, goodStructuredResponse)
	_, err := p.Run(context.Background(), Request{
		Mode:           ModeAuto,
		TranscriptText: "no identifiable header here",
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestRunManualModeWithoutScoresPersistsNothing(t *testing.T) {
	p, store := newTestPipeline(t) // nil scorer
	_, err := p.Run(context.Background(), Request{
		Company: "Ganesh Housing",
		Quarter: "Q1 FY24",
		Mode:    ModeManual,
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	entries, _ := store.Load()
	if len(entries) != 0 {
		t.Fatalf("entries = %d, want 0 (no all-unscored ghost entry)", len(entries))
	}
}

func TestRunDetectsCompanyAndQuarterFromTranscript(t *testing.T) {
	p, _ := newTestPipeline(t, goodStructuredResponse)
	res, err := p.Run(context.Background(), Request{
		Mode:           ModeAuto,
		TranscriptText: "Ganesh Housing Corporation Limited\nQ1 FY24 Earnings Conference Call\nmanagement remarks",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Company != "Ganesh Housing Corporation Limited" {
		t.Fatalf("company = %q", res.Company)
	}
	if res.Quarter != "Q1 FY24" {
		t.Fatalf("quarter = %q", res.Quarter)
	}
}

func TestRunRepeatedUpsertsReplace(t *testing.T) {
	p, store := newTestPipeline(t, goodStructuredResponse, goodStructuredResponse)
	req := Request{Company: "A", Quarter: "Q1 FY24", Mode: ModeAuto, TranscriptText: "text"}
	if _, err := p.Run(context.Background(), req); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := p.Run(context.Background(), req); err != nil {
		t.Fatalf("second run: %v", err)
	}
	entries, _ := store.Load()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 after re-rating the same quarter", len(entries))
	}
}
