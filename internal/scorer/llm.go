package scorer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are an equity analyst rating company management from an earnings-call transcript. " +
	"Rate each category on an integer scale of 0 to 5: Strategy & Vision, Execution & Delivery, " +
	"Communication Clarity, Capital Allocation, Governance & Integrity, Outlook & Realism. " +
	"Respond with strict JSON only: either a flat category-to-score object, or an object with " +
	"\"ratings\", \"justification\", and \"red_flags\" fields. Justify each score in at least one full sentence."

const (
	// MaxTranscriptChars bounds the text sent to the model per call.
	MaxTranscriptChars = 24000

	// CallTimeout bounds a single scoring run; the original tool would hang
	// on a stuck upstream indefinitely.
	CallTimeout = 120 * time.Second

	maxAttempts = 3
)

type llmFailureClass int

const (
	failureTimeout llmFailureClass = iota
	failureRateLimit
	failureServer
	failureClient
)

// LLMCaller is the transport seam; tests substitute a fake.
type LLMCaller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// ErrUnavailable reports a scorer that cannot run at all (no credential).
// Fatal for the current run only; nothing is persisted.
var ErrUnavailable = errors.New("scorer unavailable: ANTHROPIC_API_KEY not configured")

func NewAnthropicCallerFromEnv() (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, ErrUnavailable
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey)}, nil
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens:   4096,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// Request carries everything a scoring run may consider. Only Transcript is
// required; the rest enrich the prompt when present.
type Request struct {
	Transcript      string
	ComparisonText  string
	NewsSnippets    []string
	InsiderFlags    []string
	LeadershipNotes string
}

// Scorer runs one scoring call with retry on transient transport failures and
// parses the model's reply into a Response.
type Scorer struct {
	caller LLMCaller
}

func NewScorer(caller LLMCaller) *Scorer {
	return &Scorer{caller: caller}
}

func (s *Scorer) Score(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	prompt := BuildPrompt(req)
	feedback := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fullPrompt := prompt
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		raw, err := s.caller.GenerateJSON(ctx, fullPrompt)
		if err != nil {
			class := classifyTransportError(err)
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < maxAttempts && ctx.Err() == nil {
					time.Sleep(backoffDelay(attempt))
					continue
				}
			}
			return Response{}, fmt.Errorf("scorer transport failure: %w", err)
		}

		resp, perr := ParseResponse(raw)
		if perr != nil {
			if attempt < maxAttempts {
				feedback = "Your previous response was not valid JSON in the expected shape. " +
					"Respond with only valid JSON: a flat category-to-score object, or an object with ratings, justification, and red_flags."
				continue
			}
			return Response{}, perr
		}
		return resp, nil
	}
	return Response{}, errors.New("scorer failed after retries")
}

// BuildPrompt assembles the user prompt from the run inputs. The transcript is
// truncated to MaxTranscriptChars before anything else is appended.
func BuildPrompt(req Request) string {
	var b strings.Builder
	transcript := req.Transcript
	if len(transcript) > MaxTranscriptChars {
		transcript = transcript[:MaxTranscriptChars]
	}
	b.WriteString("Earnings-call transcript:\n\n")
	b.WriteString(transcript)
	if strings.TrimSpace(req.ComparisonText) != "" {
		b.WriteString("\n\nPrior-quarter transcript for comparison:\n\n")
		b.WriteString(req.ComparisonText)
	}
	if len(req.NewsSnippets) > 0 {
		b.WriteString("\n\nRecent news:\n")
		for _, n := range req.NewsSnippets {
			b.WriteString("- " + n + "\n")
		}
	}
	if len(req.InsiderFlags) > 0 {
		b.WriteString("\nInsider trading red flags:\n")
		for _, f := range req.InsiderFlags {
			b.WriteString("- " + f + "\n")
		}
	}
	if strings.TrimSpace(req.LeadershipNotes) != "" {
		b.WriteString("\nLeadership notes:\n" + req.LeadershipNotes + "\n")
	}
	return b.String()
}

func classifyTransportError(err error) llmFailureClass {
	msg := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	switch {
	case strings.Contains(msg, "429"):
		return failureRateLimit
	case strings.Contains(msg, " 5") || strings.Contains(msg, "status code: 5") || strings.Contains(msg, "server error"):
		return failureServer
	case strings.Contains(msg, " 4") || strings.Contains(msg, "status code: 4"):
		return failureClient
	default:
		return failureServer
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return 2 * time.Second
}
