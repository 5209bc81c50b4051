package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/dustin/go-humanize"
	"github.com/pdfcraft/go-pdfcraft/config"
	"github.com/pdfcraft/go-pdfcraft/conversion"
	"github.com/pdfcraft/go-pdfcraft/network/partuploader"
)

func runConvert(ctx context.Context, client *conversion.Client, cfg config.Config, cmd convertCmd, logger log.Logger) error {
	format, err := parseFormat(cmd.Format)
	if err != nil {
		return err
	}
	polling, err := pollingConfig(cfg.Polling(), cmd.Strategy)
	if err != nil {
		return err
	}
	if cmd.Export != "" && !strings.HasPrefix(cmd.Export, "s3://") {
		return fmt.Errorf("export location must be an s3:// URL: %s", cmd.Export)
	}

	sources, err := newSourceEvaluator(logger).evaluate(cmd.Sources)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return errors.New("no sources to convert")
	}

	opts := cfg.ConvertOptions()
	opts.SubmitOptions = conversion.SubmitOptions{
		Format:            format,
		Model:             cmd.Model,
		IncludesFootnotes: cmd.Footnotes,
		FailOnPDFErrors:   cmd.StrictPDF,
		FailOnOCRErrors:   cmd.StrictOCR,
	}
	opts.NoWait = cmd.NoWait
	opts.Polling = polling
	opts.Progress = printUploadProgress(logger)

	var failed int
	for _, source := range sources {
		logger.Println()
		logger.Infof("Converting %s", source)

		outcome, err := client.Convert(ctx, source, opts)
		if err != nil {
			failed++
			logger.Errorf("Failed to convert %s: %s", source, err)
			if errors.Is(err, context.Canceled) {
				break
			}
			continue
		}

		if cmd.NoWait {
			logger.Donef("Submitted, session ID: %s", outcome.SessionID)
			continue
		}
		logger.Donef("Converted: %s", outcome.DownloadURL)

		if err := deliver(ctx, client, outcome.DownloadURL, cmd.Output, cmd.Extract, cmd.Export, logger); err != nil {
			failed++
			logger.Errorf("Failed to deliver the result of %s: %s", source, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d conversion(s) failed", failed, len(sources))
	}
	return nil
}

// deliver downloads, extracts and exports a result as requested.
func deliver(ctx context.Context, client *conversion.Client, downloadURL, output string, extract bool, export string, logger log.Logger) error {
	if output == "" && export == "" {
		return nil
	}

	dir := output
	if dir == "" {
		tmp, err := pathutil.NewPathProvider().CreateTempDir("pdfcraft")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp) //nolint:errcheck
		dir = tmp
	}
	dir = filepath.Clean(dir) + string(filepath.Separator)

	path, err := client.DownloadResult(ctx, downloadURL, dir)
	if err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil {
		logger.Printf("Downloaded %s (%s)", path, humanize.Bytes(uint64(info.Size())))
	}

	if extract {
		target := strings.TrimSuffix(path, filepath.Ext(path))
		files, err := client.ExtractResult(path, target)
		if err != nil {
			return err
		}
		logger.Printf("Extracted %d file(s) to %s", len(files), target)
	}

	if export != "" {
		location, err := client.ExportResult(ctx, path, export)
		if err != nil {
			return err
		}
		logger.Printf("Exported to %s", location)
	}
	return nil
}

func printUploadProgress(logger log.Logger) partuploader.ProgressCallback {
	return func(p partuploader.Progress) {
		logger.Printf("Uploaded %s / %s (%.1f%%), part %d/%d",
			humanize.Bytes(uint64(p.UploadedBytes)), humanize.Bytes(uint64(p.TotalBytes)),
			p.Percentage, p.CurrentPart, p.TotalParts)
	}
}

func runStatus(ctx context.Context, client *conversion.Client, cmd statusCmd, logger log.Logger) error {
	format, err := parseFormat(cmd.Format)
	if err != nil {
		return err
	}

	status, err := client.Result(ctx, cmd.SessionID, format)
	if err != nil {
		return err
	}

	logger.Printf("Session:  %s", cmd.SessionID)
	logger.Printf("State:    %s", status.State)
	if status.DownloadURL != "" {
		logger.Printf("Download: %s", status.DownloadURL)
	}
	if status.Error != "" {
		logger.Printf("Error:    %s", status.Error)
	}
	return nil
}

func runWait(ctx context.Context, client *conversion.Client, cfg config.Config, cmd waitCmd, logger log.Logger) error {
	format, err := parseFormat(cmd.Format)
	if err != nil {
		return err
	}
	polling, err := pollingConfig(cfg.Polling(), cmd.Strategy)
	if err != nil {
		return err
	}

	downloadURL, err := client.WaitForCompletion(ctx, cmd.SessionID, format, polling)
	if err != nil {
		return err
	}
	logger.Donef("Converted: %s", downloadURL)

	return deliver(ctx, client, downloadURL, cmd.Output, false, "", logger)
}
