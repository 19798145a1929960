package transcript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"unicode"
)

const (
	maxPDFBytes = 20 * 1024 * 1024
	maxTextRun  = 24000

	// PreviewChars is how much extracted text the upload flow echoes back.
	PreviewChars = 3000
)

var (
	quarterPattern = regexp.MustCompile(`(?i)\b(Q[1-4])[\s,]*(?:of\s+)?(FY\s?'?\d{2,4}|20\d{2}(?:-\d{2})?)\b`)
	companyPattern = regexp.MustCompile(`(?i)^\s*([A-Z][A-Za-z0-9&.\- ]{2,60}?(?:Limited|Ltd\.?|Inc\.?|Corp\.?|Corporation|plc|LLC))\b`)
)

type ExtractionResult struct {
	Text      string
	Method    string
	Truncated bool
}

// ExtractPDFText pulls concatenated page text out of a transcript PDF.
// pdftotext is preferred; a printable-byte scan is the fallback for PDFs with
// embedded text streams. An empty result is an error here, but callers treat
// extraction failure as non-fatal and proceed on empty text.
func ExtractPDFText(ctx context.Context, path string) (ExtractionResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ExtractionResult{}, err
	}
	if info.Size() > maxPDFBytes {
		return ExtractionResult{}, fmt.Errorf("pdf too large: %d bytes", info.Size())
	}

	if text, err := runPdfToText(ctx, path); err == nil && strings.TrimSpace(text) != "" {
		return truncateExtraction(text, "pdftotext"), nil
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return ExtractionResult{}, err
	}
	fallback := extractPrintableText(blob)
	if strings.TrimSpace(fallback) == "" {
		return ExtractionResult{}, errors.New("no extractable text found")
	}
	return truncateExtraction(fallback, "byte-fallback"), nil
}

func runPdfToText(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func extractPrintableText(blob []byte) string {
	var runs []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if len(s) >= 24 {
			runs = append(runs, s)
		}
		b.Reset()
	}
	for _, c := range blob {
		r := rune(c)
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	joined := strings.Join(runs, "\n")
	joined = strings.ReplaceAll(joined, "\x00", "")
	joined = strings.TrimSpace(joined)
	return joined
}

func truncateExtraction(text, method string) ExtractionResult {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= maxTextRun {
		return ExtractionResult{Text: trimmed, Method: method}
	}
	prefix := trimmed[:maxTextRun]
	// Avoid cutting in the middle of a rune sequence.
	prefix = string(bytes.Runes([]byte(prefix)))
	return ExtractionResult{
		Text:      prefix + "\n\n[TRUNCATED]",
		Method:    method,
		Truncated: true,
	}
}

// Preview returns the leading slice of extracted text shown to the user
// before a run commits.
func Preview(text string) string {
	if len(text) <= PreviewChars {
		return text
	}
	return string(bytes.Runes([]byte(text[:PreviewChars])))
}

// DetectQuarter finds a quarter label like "Q1 FY24" or "Q3 2024" near the
// top of the transcript. Empty when nothing matches; the caller's explicit
// quarter always wins over detection.
func DetectQuarter(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	if len(s) > 8000 {
		s = s[:8000]
	}
	m := quarterPattern.FindStringSubmatch(s)
	if len(m) != 3 {
		return ""
	}
	q := strings.ToUpper(m[1])
	fy := strings.ToUpper(strings.ReplaceAll(m[2], " ", ""))
	fy = strings.ReplaceAll(fy, "'", "")
	if !strings.HasPrefix(fy, "FY") {
		fy = "FY" + fy
	}
	return q + " " + fy
}

// DetectCompany scans the first lines for a company-looking name. Transcripts
// open with a title block naming the issuer more often than not.
func DetectCompany(text string) string {
	for _, line := range strings.SplitN(text, "\n", 20) {
		if m := companyPattern.FindStringSubmatch(line); len(m) == 2 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
