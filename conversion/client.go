// Package conversion is the public client of the PDF conversion service.
//
// A Client uploads local PDFs, submits conversion jobs and waits for them to
// finish:
//
//	client, err := conversion.New(conversion.Options{APIKey: key})
//	if err != nil {
//		return err
//	}
//	outcome, err := client.Convert(ctx, "./book.pdf", conversion.ConvertOptions{})
package conversion

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/pdfcraft/go-pdfcraft/archive"
	"github.com/pdfcraft/go-pdfcraft/network"
)

// DefaultBaseURL is the API root of the hosted service.
const DefaultBaseURL = "https://fusion-api.oomol.com/v1"

// Options ...
type Options struct {
	APIKey string
	// BaseURL defaults to DefaultBaseURL. A trailing slash is ignored.
	BaseURL   string
	Endpoints network.Endpoints
	// APIRetryMax is the number of transport retries of API calls, 0 means a single attempt.
	APIRetryMax int
	Logger      log.Logger
	// Tracker receives usage events. Nothing is tracked when nil.
	Tracker Tracker
	// S3 is used for s3:// sources and exports.
	S3 network.S3Params
	// EnvRepo is the environment of external commands, the process environment when nil.
	EnvRepo env.Repository
}

type presignFunc func(ctx context.Context, rawURL string, params network.S3Params, logger log.Logger) (string, error)

type exportFunc func(ctx context.Context, filePath, rawURL string, params network.S3Params, logger log.Logger) (string, error)

// Client ...
type Client struct {
	api        *network.Client
	uploader   network.Uploader
	downloader network.Downloader
	extractor  *archive.Extractor
	s3         network.S3Params
	logger     log.Logger
	tracker    conversionTracker

	presign presignFunc
	export  exportFunc
}

// New validates the options and creates a Client.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Logger == nil {
		opts.Logger = log.NewLogger()
	}
	if opts.Tracker == nil {
		opts.Tracker = noopTracker{}
	}
	if opts.EnvRepo == nil {
		opts.EnvRepo = env.NewRepository()
	}

	api, err := network.NewClient(network.ClientParams{
		BaseURL:   opts.BaseURL,
		Token:     opts.APIKey,
		Endpoints: opts.Endpoints,
		RetryMax:  opts.APIRetryMax,
	}, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		api:        api,
		uploader:   network.NewUploader(api),
		downloader: network.DefaultDownloader{},
		extractor:  archive.NewExtractor(opts.Logger, opts.EnvRepo, archive.NewBinaryChecker(opts.Logger, opts.EnvRepo)),
		s3:         opts.S3,
		logger:     opts.Logger,
		tracker:    conversionTracker{tracker: opts.Tracker},
		presign:    network.PresignS3Source,
		export:     network.ExportToS3,
	}, nil
}

// API exposes the underlying REST client, e.g. for batch.New.
func (c *Client) API() *network.Client {
	return c.api
}

// Close flushes the queued usage events.
func (c *Client) Close() {
	c.tracker.wait()
}
