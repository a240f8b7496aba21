package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/DeafMist/topstories/backend/internal/logger"
	"github.com/DeafMist/topstories/backend/internal/processing"
)

func main() {
	in := flag.String("in", "analytics.log", "newline-delimited JSON log to read")
	out := flag.String("out", "out.log", "file to write normalised records to")
	flag.Parse()

	log := logger.New("reparse")

	written, err := run(*in, *out)
	if err != nil {
		log.Error("reparse failed", slog.String("in", *in), slog.String("out", *out), slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("reparse completed",
		slog.String("in", *in),
		slog.String("out", *out),
		slog.Int("records", written),
	)
}

func run(inPath, outPath string) (int, error) {
	src, err := os.Open(inPath)
	if err != nil {
		return 0, fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}

	written, err := processing.NormalizeStream(src, dst)
	if closeErr := dst.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close output: %w", closeErr)
	}
	return written, err
}
