package report

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// ChromiumPDFRenderer turns a rating report into a PDF through headless
// Chromium. Input is either bare markdown or a JSON run result carrying a
// report_markdown field.
type ChromiumPDFRenderer struct {
	chromePath string
}

func NewChromiumPDFRenderer() *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{chromePath: detectChromePath()}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, reportDoc string) ([]byte, error) {
	htmlDoc, err := buildHTML(reportDoc)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;padding-right:8px;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return pdf, nil
}

func buildHTML(reportDoc string) (string, error) {
	markdown := reportDoc
	metaHTML := ""

	var envelope map[string]any
	if json.Unmarshal([]byte(reportDoc), &envelope) == nil {
		if s, ok := envelope["report_markdown"].(string); ok && strings.TrimSpace(s) != "" {
			markdown = s
		}
		metaHTML = buildMetaHTML(envelope)
	}

	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}

	return "<!doctype html><html><head><meta charset='utf-8'><title>Management Rating Report</title>" +
		"<style>" + reportCSS +
		"html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
		"@media print{ @page{size:auto;margin:12mm;} body{background:#fff !important;padding:0;} }" +
		"</style></head><body>" +
		"<div class='report-wrap'><div class='report-meta'>" + metaHTML + "</div>" +
		"<div class='report-html'>" + content.String() + "</div></div>" +
		"</body></html>", nil
}

const reportCSS = "body{font-family:Georgia,serif;background:#fff;color:#1c1917;padding:0.6rem;} " +
	".report-wrap{max-width:1000px;margin:0 auto;} " +
	".report-meta{color:#44403c;font-size:0.85rem;margin-bottom:0.8rem;} " +
	".report-meta strong{color:#1c1917;} " +
	".report-html table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.8rem;} " +
	".report-html th,.report-html td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;} " +
	".report-html thead th{background:#f1f5f9;font-weight:700;} "

func buildMetaHTML(env map[string]any) string {
	var out strings.Builder
	if c := stringValue(env["company"]); c != "" {
		out.WriteString("<div><strong>Company:</strong> " + html.EscapeString(c) + "</div>")
	}
	if q := stringValue(env["quarter"]); q != "" {
		out.WriteString("<div><strong>Quarter:</strong> " + html.EscapeString(q) + "</div>")
	}
	if d := stringValue(env["date"]); d != "" {
		out.WriteString("<div><strong>Rated on:</strong> " + html.EscapeString(d) + "</div>")
	}
	return out.String()
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func detectChromePath() string {
	candidates := []string{
		os.Getenv("CHROME_PATH"),
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
