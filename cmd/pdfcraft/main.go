package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/pdfcraft/go-pdfcraft/config"
	"github.com/pdfcraft/go-pdfcraft/conversion"
	"github.com/pdfcraft/go-pdfcraft/poll"
)

type convertCmd struct {
	Sources   []string `arg:"positional,required" help:"local PDFs (glob patterns allowed), http(s)://, cache:// or s3:// URLs"`
	Format    string   `arg:"-f,--format" default:"markdown" help:"output format: markdown or epub"`
	Model     string   `arg:"-m,--model" default:"gundam" help:"conversion model"`
	Footnotes bool     `arg:"--footnotes" help:"process footnotes"`
	StrictPDF bool     `arg:"--strict-pdf" help:"fail the job on PDF parsing errors"`
	StrictOCR bool     `arg:"--strict-ocr" help:"fail the job on OCR errors"`
	NoWait    bool     `arg:"--no-wait" help:"print the session id right after submission"`
	Strategy  string   `arg:"--strategy" help:"polling strategy: fixed, exponential or aggressive"`
	Output    string   `arg:"-o,--output" help:"download the results into this directory"`
	Extract   bool     `arg:"-x,--extract" help:"extract the downloaded bundles"`
	Export    string   `arg:"--export" help:"s3:// location to upload the results to"`
}

type statusCmd struct {
	SessionID string `arg:"positional,required"`
	Format    string `arg:"-f,--format" default:"markdown"`
}

type waitCmd struct {
	SessionID string `arg:"positional,required"`
	Format    string `arg:"-f,--format" default:"markdown"`
	Strategy  string `arg:"--strategy" help:"polling strategy: fixed, exponential or aggressive"`
	Output    string `arg:"-o,--output" help:"download the result into this directory"`
}

type args struct {
	Convert *convertCmd `arg:"subcommand:convert" help:"convert PDFs"`
	Status  *statusCmd  `arg:"subcommand:status" help:"show the state of a conversion"`
	Wait    *waitCmd    `arg:"subcommand:wait" help:"wait for a submitted conversion"`
	Batch   *batchCmd   `arg:"subcommand:batch" help:"manage batches"`

	EnvFile []string `arg:"--env-file,separate" help:"load variables from this file (repeatable), .env by default"`
	Verbose bool     `arg:"-v,--verbose" help:"debug logging"`
}

func (args) Description() string {
	return "pdfcraft converts PDF documents to Markdown or EPUB with the PDF Craft service.\n" +
		"Configuration is read from PDF_CRAFT_* environment variables."
}

func main() {
	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	logger := log.NewLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, a, logger); err != nil {
		logger.Errorf("%s", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, a args, logger log.Logger) error {
	if err := config.LoadDotEnv(a.EnvFile...); err != nil {
		return err
	}

	envRepo := env.NewRepository()
	cfg, err := config.Load(envRepo)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.EnableDebugLog(cfg.Debug || a.Verbose)
	if cfg.Debug || a.Verbose {
		cfg.Print(logger)
	}

	client, err := conversion.New(cfg.ClientOptions(envRepo, logger))
	if err != nil {
		return err
	}
	defer client.Close()

	switch {
	case a.Convert != nil:
		return runConvert(ctx, client, cfg, *a.Convert, logger)
	case a.Status != nil:
		return runStatus(ctx, client, *a.Status, logger)
	case a.Wait != nil:
		return runWait(ctx, client, cfg, *a.Wait, logger)
	case a.Batch != nil:
		return runBatch(ctx, client, *a.Batch, logger)
	}
	return nil
}

func parseFormat(s string) (conversion.FormatType, error) {
	format := conversion.FormatType(strings.ToLower(s))
	if !format.Valid() {
		return "", fmt.Errorf("unknown format %q, use markdown or epub", s)
	}
	return format, nil
}

// pollingConfig applies a named strategy on top of the configured polling.
func pollingConfig(base poll.Config, strategy string) (poll.Config, error) {
	switch strings.ToLower(strategy) {
	case "":
		return base, nil
	case "fixed":
		return base.WithStrategy(conversion.PollingFixed), nil
	case "exponential":
		return base.WithStrategy(conversion.PollingExponential), nil
	case "aggressive":
		return base.WithStrategy(conversion.PollingAggressive), nil
	default:
		return poll.Config{}, fmt.Errorf("unknown polling strategy %q", strategy)
	}
}
