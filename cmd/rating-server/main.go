package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/thewiningturtle/management-rating-app/internal/httpapi"
	"github.com/thewiningturtle/management-rating-app/internal/ledger"
	"github.com/thewiningturtle/management-rating-app/internal/pipeline"
	"github.com/thewiningturtle/management-rating-app/internal/scorer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "Listen address")
		ledgerPath = flag.String("ledger", "rating_history.csv", "Path to the CSV rating ledger")
		dbPath     = flag.String("db", "", "Optional sqlite database path (used instead of the CSV ledger)")
		uploadDir  = flag.String("upload-dir", "./uploads", "Directory for uploaded transcript PDFs")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing := setupTracing(ctx)
	defer shutdownTracing()

	var store ledger.Store
	if *dbPath != "" {
		s, err := ledger.NewSQLiteStore(*dbPath)
		if err != nil {
			log.Fatalf("open sqlite ledger: %v", err)
		}
		defer s.Close()
		store = s
	} else {
		store = ledger.NewCSVStore(*ledgerPath)
	}

	var sc *scorer.Scorer
	caller, err := scorer.NewAnthropicCallerFromEnv()
	if err != nil {
		log.Printf("warning: %v (auto mode disabled, manual ratings still accepted)", err)
	} else {
		sc = scorer.NewScorer(caller)
	}

	if err := os.MkdirAll(*uploadDir, 0o755); err != nil {
		log.Fatalf("create upload dir: %v", err)
	}

	handler := httpapi.NewServer(pipeline.New(sc, store), store, *uploadDir)

	log.Printf("rating server listening on %s (ledger=%s)", *addr, storeLabel(*ledgerPath, *dbPath))
	srv := &http.Server{Addr: *addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func storeLabel(ledgerPath, dbPath string) string {
	if dbPath != "" {
		return "sqlite:" + dbPath
	}
	return "csv:" + ledgerPath
}

// setupTracing installs an OTLP/HTTP trace exporter when
// OTEL_EXPORTER_OTLP_ENDPOINT is set; otherwise spans stay no-op.
func setupTracing(ctx context.Context) func() {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func() {}
	}
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		log.Printf("warning: otlp exporter init failed: %v (tracing disabled)", err)
		return func() {}
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "rating-server"),
		)),
	)
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("trace shutdown: %v", err)
		}
	}
}
