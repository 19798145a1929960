package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/thewiningturtle/management-rating-app/internal/report"
)

func main() {
	inputPath := flag.String("input", "", "Path to report markdown or a saved run result JSON")
	outputPath := flag.String("output", "", "Path to write the PDF")
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("missing required -input")
	}
	if *outputPath == "" {
		log.Fatal("missing required -output")
	}

	in, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	renderer := report.NewChromiumPDFRenderer()
	pdf, err := renderer.Render(ctx, string(in))
	if err != nil {
		log.Fatalf("render report: %v", err)
	}

	if err := os.WriteFile(*outputPath, pdf, 0o644); err != nil {
		log.Fatalf("write pdf: %v", err)
	}
	log.Printf("wrote %s (%d bytes)", *outputPath, len(pdf))
}
