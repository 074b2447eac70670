// Package downstream implements the gateway's HTTP client for the peer
// services it fronts. Every call carries the shared X-API-Key and the
// request's X-Correlation-Id; status and body come back byte-for-byte
// so forwarders can relay them unchanged.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"composer/internal/domain"
	gw "composer/internal/gateway"
	"composer/internal/platform/telemetry"
)

// Service names a peer the gateway forwards to.
type Service string

const (
	Auth         Service = "auth"
	Conversation Service = "conversation"
	Upload       Service = "upload"
)

// DefaultTimeout bounds every peer call. The original system only
// bounded the OAuth token exchange, which had a history of hanging;
// here all calls get the same bound.
const DefaultTimeout = 10 * time.Second

// Response is the raw outcome of a peer call.
type Response struct {
	Status int
	Body   []byte
}

// FilePart is one file forwarded in a multipart request.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string
	Content     []byte
}

// Client forwards requests to the configured peer services.
type Client struct {
	targets map[Service]*url.URL
	apiKey  string
	httpc   *http.Client
	metrics *telemetry.GatewayMetrics
}

// New builds a client for the three peer base URLs. The metrics
// parameter is optional; pass nil to skip metric recording.
func New(authURL, conversationURL, uploadURL, apiKey string, timeout time.Duration, m *telemetry.GatewayMetrics) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	targets := make(map[Service]*url.URL, 3)
	for svc, raw := range map[Service]string{
		Auth:         authURL,
		Conversation: conversationURL,
		Upload:       uploadURL,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s service URL: %w", svc, err)
		}
		targets[svc] = u
	}
	return &Client{
		targets: targets,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
		metrics: m,
	}, nil
}

// Forward sends a JSON (or bodyless) request to the named peer and
// returns its status and body verbatim. jsonBody may be nil. header
// entries (e.g. a pass-through Authorization) are copied onto the
// outbound request after the standard service headers.
// Transport failures and unreadable bodies normalize to
// *domain.DownstreamError.
func (c *Client) Forward(ctx context.Context, svc Service, method, path string, query url.Values, jsonBody any, header http.Header) (*Response, error) {
	var body io.Reader
	if jsonBody != nil {
		buf, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request body: %w", svc, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := c.newRequest(ctx, svc, method, path, body)
	if err != nil {
		return nil, err
	}
	if jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	return c.do(ctx, svc, req)
}

// ForwardMultipart sends a multipart/form-data POST carrying one file
// plus form fields, used for the upload peer.
func (c *Client) ForwardMultipart(ctx context.Context, svc Service, path string, file FilePart, fields map[string]string) (*Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("writing form field %q: %w", k, err)
		}
	}
	part, err := createFilePart(mw, file)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, fmt.Errorf("writing file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, svc, http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(ctx, svc, req)
}

func (c *Client) newRequest(ctx context.Context, svc Service, method, path string, body io.Reader) (*http.Request, error) {
	base, ok := c.targets[svc]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", svc)
	}
	target := *base
	target.Path = strings.TrimSuffix(base.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", svc, err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if corrID := gw.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-Id", corrID)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, svc Service, req *http.Request) (*Response, error) {
	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &domain.DownstreamError{Service: string(svc), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.DownstreamError{Service: string(svc), Err: fmt.Errorf("reading response: %w", err)}
	}

	if c.metrics != nil {
		c.metrics.RecordForward(ctx, string(svc), resp.StatusCode, time.Since(start).Seconds())
	}
	return &Response{Status: resp.StatusCode, Body: body}, nil
}

func createFilePart(mw *multipart.Writer, file FilePart) (io.Writer, error) {
	field := file.FieldName
	if field == "" {
		field = "file"
	}
	if file.ContentType == "" {
		part, err := mw.CreateFormFile(field, file.FileName)
		if err != nil {
			return nil, fmt.Errorf("creating file part: %w", err)
		}
		return part, nil
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.FileName))
	h.Set("Content-Type", file.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("creating file part: %w", err)
	}
	return part, nil
}
