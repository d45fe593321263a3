package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/plugbot/plugbot/internal/config"
)

// ErrUnhealthy is returned by Health when the API does not answer 200.
var ErrUnhealthy = errors.New("dify: unhealthy")

// Options tune a Client. Zero values use the defaults from config.
type Options struct {
	ConnectTimeout time.Duration
	HealthTimeout  time.Duration
	ReadTimeout    time.Duration // longest silence while reading a response body
	HTTPClient     *http.Client
}

// Client talks to one Dify application.
type Client struct {
	endpoint      string
	apiKey        string
	httpClient    *http.Client
	healthTimeout time.Duration
	readTimeout   time.Duration
	logger        *slog.Logger
}

func NewClient(log *slog.Logger, endpoint, apiKey string, opts Options) *Client {
	if log == nil {
		log = slog.Default()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.ConnectTimeout)
	}
	return &Client{
		endpoint:      strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:        apiKey,
		httpClient:    httpClient,
		healthTimeout: opts.HealthTimeout,
		readTimeout:   opts.ReadTimeout,
		logger:        log.With(slog.String("service", "dify")),
	}
}

// newHTTPClient bounds connecting and waiting for response headers. Reading
// the body is bounded by Options.ReadTimeout in Stream.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: connectTimeout,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Factory builds clients for bots sharing one HTTP transport.
type Factory struct {
	opts   Options
	logger *slog.Logger
}

func NewFactory(log *slog.Logger, cfg config.DifyConfig) *Factory {
	connect := cfg.RequestTimeoutDuration()
	return &Factory{
		opts: Options{
			ConnectTimeout: connect,
			HealthTimeout:  cfg.HealthTimeoutDuration(),
			ReadTimeout:    cfg.StreamTimeoutDuration(),
			HTTPClient:     newHTTPClient(connect),
		},
		logger: log,
	}
}

// NewFactoryWithClient is used by tests to point clients at an httptest server.
func NewFactoryWithClient(log *slog.Logger, httpClient *http.Client) *Factory {
	return &Factory{opts: Options{HTTPClient: httpClient}, logger: log}
}

func (f *Factory) Client(endpoint, apiKey string) *Client {
	return NewClient(f.logger, endpoint, apiKey, f.opts)
}

// ChatMessages prepares a chat request. Nothing is sent until the first
// call to Stream.Next. Transport and HTTP failures surface as error events.
func (c *Client) ChatMessages(ctx context.Context, req ChatRequest) *Stream {
	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}
	if req.ResponseMode == "" {
		req.ResponseMode = ResponseModeStreaming
	}
	if req.User == "" {
		req.User = "default-user"
	}
	return &Stream{ctx: ctx, client: c, req: req}
}

// UploadFile stores a file for use in a later chat request.
func (c *Client) UploadFile(ctx context.Context, user, filename, mimeType string, data []byte) (UploadedFile, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return UploadedFile{}, err
	}
	if _, err := part.Write(data); err != nil {
		return UploadedFile{}, err
	}
	if err := mw.WriteField("user", user); err != nil {
		return UploadedFile{}, err
	}
	if err := mw.Close(); err != nil {
		return UploadedFile{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/files/upload", &body)
	if err != nil {
		return UploadedFile{}, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return UploadedFile{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("dify upload error", slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(respBody), 300)))
		return UploadedFile{}, fmt.Errorf("upload file: status %d", resp.StatusCode)
	}
	var uploaded UploadedFile
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return UploadedFile{}, fmt.Errorf("parse upload response: %w", err)
	}
	if uploaded.ID == "" {
		return UploadedFile{}, fmt.Errorf("upload response has no file id")
	}
	return uploaded, nil
}

// Health probes GET /parameters with the health timeout.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/parameters", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
