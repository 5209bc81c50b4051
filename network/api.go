package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pdfcraft/go-pdfcraft/errs"
)

// ClientParams ...
type ClientParams struct {
	BaseURL   string
	Token     string
	Endpoints Endpoints
	// RetryMax is the number of transport level retries of API calls.
	// Zero means every API call is attempted exactly once.
	RetryMax int
	// HTTPClient overrides the retryable client, mostly for tests.
	HTTPClient *retryablehttp.Client
}

// Client talks to the REST API of the conversion service.
type Client struct {
	httpClient  *retryablehttp.Client
	baseURL     string
	accessToken string
	endpoints   Endpoints
	logger      log.Logger
}

// NewClient ...
func NewClient(params ClientParams, logger log.Logger) (*Client, error) {
	if params.BaseURL == "" {
		return nil, fmt.Errorf("API base URL is empty")
	}

	if params.Token == "" {
		return nil, fmt.Errorf("API token is empty")
	}

	if params.RetryMax < 0 {
		return nil, fmt.Errorf("API retry count must not be negative")
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = retryhttp.NewClient(logger)
		httpClient.RetryMax = params.RetryMax
		httpClient.CheckRetry = createCustomRetryFunction(logger)
	}
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(params.BaseURL, "/"),
		accessToken: params.Token,
		endpoints:   params.Endpoints.withDefaults(),
		logger:      logger,
	}, nil
}

// Endpoints returns the paths the client was configured with.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// BaseURL ...
func (c *Client) BaseURL() string {
	return c.baseURL
}

// InitUpload requests a multipart upload plan for a file.
func (c *Client) InitUpload(ctx context.Context, fileName string, fileSize int64, extension, contentType string) (InitUploadResponse, error) {
	var response InitUploadResponse
	err := c.DoJSON(ctx, http.MethodPost, c.endpoints.UploadInit, initUploadRequest{
		FileName:      fileName,
		FileSize:      fileSize,
		FileExtension: extension,
		ContentType:   contentType,
	}, &response)
	if err != nil {
		return InitUploadResponse{}, err
	}
	return response, nil
}

// FinalizeUpload completes a multipart upload and returns the addressable
// location of the assembled object.
func (c *Client) FinalizeUpload(ctx context.Context, uploadID string) (string, error) {
	path := Expand(c.endpoints.UploadFinalize, map[string]string{"uploadId": uploadID})

	var response GetUploadURLResponse
	if err := c.DoJSON(ctx, http.MethodPost, path, nil, &response); err != nil {
		return "", err
	}
	if response.URL == "" {
		return "", &errs.ProtocolError{Op: "finalize", Message: fmt.Sprintf("no url returned for upload %s", uploadID)}
	}
	return response.URL, nil
}

// SubmitConversion starts a conversion job. The raw answer is returned, the
// caller decides what an unsuccessful answer means.
func (c *Client) SubmitConversion(ctx context.Context, format string, request SubmitRequest) (SubmitResponse, error) {
	path := Expand(c.endpoints.Submit, map[string]string{"format": format})

	var response SubmitResponse
	if err := c.DoJSON(ctx, http.MethodPost, path, request, &response); err != nil {
		return SubmitResponse{}, err
	}
	return response, nil
}

// ConversionResult queries the state of a conversion job.
func (c *Client) ConversionResult(ctx context.Context, format, sessionID string) (ConversionResult, error) {
	path := Expand(c.endpoints.Result, map[string]string{"format": format, "sessionId": sessionID})

	var response ConversionResult
	if err := c.DoJSON(ctx, http.MethodGet, path, nil, &response); err != nil {
		return ConversionResult{}, err
	}
	return response, nil
}

// DoJSON sends in (when not nil) as a JSON body to path and decodes the JSON
// answer into out (when not nil). Non-2xx answers are returned as *errs.APIError.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body interface{}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-type", "application/json")
	}

	c.logger.Debugf("%s %s", method, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Warnf("close response body: %s", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		dump, err := httputil.DumpResponse(resp, false)
		if err != nil {
			c.logger.Warnf("error while dumping response: %s", err)
		}
		c.logger.Debugf("Response dump: %s", string(dump))
		return unwrapError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errs.ProtocolError{Op: path, Message: fmt.Sprintf("decode response: %s", err)}
	}
	return nil
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return &errs.APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(errorResp))}
}

func createCustomRetryFunction(logger log.Logger) func(context.Context, *http.Response, error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, requestErr error) (bool, error) {
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, requestErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; requestErr=%+v", retry, err, requestErr)
		return retry, err
	}
}
