package main

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/dustin/go-humanize"
	"github.com/pdfcraft/go-pdfcraft/batch"
	"github.com/pdfcraft/go-pdfcraft/conversion"
)

type batchIDCmd struct {
	BatchID string `arg:"positional,required"`
}

type batchPageCmd struct {
	Page     int `arg:"--page" default:"1"`
	PageSize int `arg:"--page-size" default:"20"`
}

type batchJobsCmd struct {
	BatchID  string `arg:"positional,required"`
	Page     int    `arg:"--page" default:"1"`
	PageSize int    `arg:"--page-size" default:"20"`
	All      bool   `arg:"--all" help:"walk every page"`
}

type batchCreateCmd struct {
	Sources   []string `arg:"positional,required" help:"local PDFs (uploaded first) or URLs"`
	Format    string   `arg:"-f,--format" default:"markdown"`
	Footnotes bool     `arg:"--footnotes"`
	Start     bool     `arg:"--start" help:"start the batch right after creation"`
}

type retryJobCmd struct {
	JobID string `arg:"positional,required"`
}

type batchCmd struct {
	Create   *batchCreateCmd `arg:"subcommand:create" help:"create a batch"`
	List     *batchPageCmd   `arg:"subcommand:list" help:"list batches"`
	Get      *batchIDCmd     `arg:"subcommand:get" help:"show a batch"`
	Jobs     *batchJobsCmd   `arg:"subcommand:jobs" help:"list the jobs of a batch"`
	Start    *batchIDCmd     `arg:"subcommand:start"`
	Cancel   *batchIDCmd     `arg:"subcommand:cancel"`
	Retry    *batchIDCmd     `arg:"subcommand:retry" help:"retry the failed jobs of a batch"`
	Pause    *batchIDCmd     `arg:"subcommand:pause"`
	Resume   *batchIDCmd     `arg:"subcommand:resume"`
	RetryJob *retryJobCmd    `arg:"subcommand:retry-job" help:"retry a single job"`
	Slots    *struct{}       `arg:"subcommand:slots" help:"show the concurrency status"`
}

func runBatch(ctx context.Context, client *conversion.Client, cmd batchCmd, logger log.Logger) error {
	batches := batch.New(client.API())

	switch {
	case cmd.Create != nil:
		return runBatchCreate(ctx, client, batches, *cmd.Create, logger)
	case cmd.List != nil:
		page, err := batches.List(ctx, cmd.List.Page, cmd.List.PageSize)
		if err != nil {
			return err
		}
		for _, b := range page.Batches {
			printBatch(b, logger)
		}
		printPagination(page.Pagination, logger)
	case cmd.Get != nil:
		detail, err := batches.Get(ctx, cmd.Get.BatchID)
		if err != nil {
			return err
		}
		printBatch(detail, logger)
	case cmd.Jobs != nil:
		return runBatchJobs(ctx, batches, *cmd.Jobs, logger)
	case cmd.Start != nil:
		return printOperation(batches.Start(ctx, cmd.Start.BatchID))(logger)
	case cmd.Cancel != nil:
		return printOperation(batches.Cancel(ctx, cmd.Cancel.BatchID))(logger)
	case cmd.Retry != nil:
		return printOperation(batches.Retry(ctx, cmd.Retry.BatchID))(logger)
	case cmd.Pause != nil:
		return printOperation(batches.Pause(ctx, cmd.Pause.BatchID))(logger)
	case cmd.Resume != nil:
		return printOperation(batches.Resume(ctx, cmd.Resume.BatchID))(logger)
	case cmd.RetryJob != nil:
		return printOperation(batches.RetryJob(ctx, cmd.RetryJob.JobID))(logger)
	case cmd.Slots != nil:
		status, err := batches.ConcurrentStatus(ctx)
		if err != nil {
			return err
		}
		logger.Printf("Running: %d / %d", status.CurrentRunningJobs, status.MaxConcurrentJobs)
		logger.Printf("Queued:  %d", status.QueuedJobs)
		logger.Printf("Can submit a new job: %t", status.CanSubmitNewJob)
	default:
		return errors.New("missing batch subcommand")
	}
	return nil
}

func runBatchCreate(ctx context.Context, client *conversion.Client, batches *batch.Client, cmd batchCreateCmd, logger log.Logger) error {
	format, err := parseFormat(cmd.Format)
	if err != nil {
		return err
	}

	sources, err := newSourceEvaluator(logger).evaluate(cmd.Sources)
	if err != nil {
		return err
	}

	var files []batch.File
	for _, source := range sources {
		file, err := batchFile(ctx, client, source, logger)
		if err != nil {
			return err
		}
		files = append(files, file)
	}

	created, err := batches.Create(ctx, files, string(format), cmd.Footnotes)
	if err != nil {
		return err
	}
	logger.Donef("Created batch %s with %d file(s)", created.BatchID, created.TotalFiles)

	if cmd.Start {
		return printOperation(batches.Start(ctx, created.BatchID))(logger)
	}
	return nil
}

// batchFile uploads local sources, URLs are referenced as they are.
func batchFile(ctx context.Context, client *conversion.Client, source string, logger log.Logger) (batch.File, error) {
	if isURL(source) {
		return batch.File{URL: source, FileName: path.Base(source)}, nil
	}

	logger.Infof("Uploading %s", source)
	location, err := client.Upload(ctx, source, conversion.ConvertOptions{Progress: printUploadProgress(logger)})
	if err != nil {
		return batch.File{}, fmt.Errorf("upload %s: %w", source, err)
	}
	return batch.File{URL: location, FileName: filepath.Base(source)}, nil
}

func runBatchJobs(ctx context.Context, batches *batch.Client, cmd batchJobsCmd, logger log.Logger) error {
	if cmd.All {
		jobs, err := batches.AllJobs(ctx, cmd.BatchID)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			printJob(j, logger)
		}
		return nil
	}

	page, err := batches.Jobs(ctx, cmd.BatchID, cmd.Page, cmd.PageSize)
	if err != nil {
		return err
	}
	for _, j := range page.Jobs {
		printJob(j, logger)
	}
	printPagination(page.Pagination, logger)
	return nil
}

func printBatch(b batch.Detail, logger log.Logger) {
	logger.Printf("%s  %-10s  %s  %d/%d done, %d failed  (%.0f%%)  created %s",
		b.ID, b.Status, b.OutputFormat, b.CompletedFiles, b.TotalFiles, b.FailedFiles, b.Progress, humanize.Time(b.CreatedAt))
}

func printJob(j batch.Job, logger log.Logger) {
	line := fmt.Sprintf("%s  %-10s  %s", j.ID, j.Status, j.FileName)
	if j.FileSize > 0 {
		line += fmt.Sprintf(" (%s)", humanize.Bytes(uint64(j.FileSize)))
	}
	if j.ResultURL != "" {
		line += "  " + j.ResultURL
	}
	if j.ErrorMessage != "" {
		line += "  error: " + j.ErrorMessage
	}
	logger.Printf("%s", line)
}

func printPagination(p batch.Pagination, logger log.Logger) {
	logger.Printf("Page %d of %d (%d total)", p.Page, p.TotalPages, p.Total)
}

func printOperation(result batch.OperationResult, err error) func(log.Logger) error {
	return func(logger log.Logger) error {
		if err != nil {
			return err
		}
		id := result.BatchID
		if id == "" {
			id = result.JobID
		}
		logger.Donef("%s: %s", id, result.Status)
		return nil
	}
}
