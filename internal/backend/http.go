package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// DefaultUserAgent identifies the harvester to remote catalogs.
const DefaultUserAgent = "catalog-harvester/1.0"

const maxBodySize = 256 << 20

// NewStdClient builds the net/http client used by backends.
func NewStdClient(timeout time.Duration, verifySSL bool) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: !verifySSL} //nolint:gosec // per-backend toggle
	return &http.Client{Timeout: timeout, Transport: transport}
}

// HTTPClient wraps an http.Client and always sends the product user agent.
type HTTPClient struct {
	client    *http.Client
	userAgent string
}

// Response is a fully read remote response.
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// NewHTTPClient wraps client. An empty userAgent falls back to DefaultUserAgent.
func NewHTTPClient(client *http.Client, userAgent string) *HTTPClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPClient{client: client, userAgent: userAgent}
}

// UserAgent returns the header value sent with every request.
func (c *HTTPClient) UserAgent() string { return c.userAgent }

// Do sends a request and returns the raw response. Error statuses become *HTTPError.
func (c *HTTPClient) Do(ctx context.Context, method, url string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &HTTPError{Method: method, URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp, nil
}

func (c *HTTPClient) read(ctx context.Context, method, url string, body io.Reader, header http.Header) (*Response, error) {
	resp, err := c.Do(ctx, method, url, body, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	ct := resp.Header.Get("Content-Type")
	return &Response{URL: url, ContentType: ct, Body: DecodeBody(data, ct)}, nil
}

// Get fetches url.
func (c *HTTPClient) Get(ctx context.Context, url string) (*Response, error) {
	return c.read(ctx, http.MethodGet, url, nil, nil)
}

// GetText fetches url and returns the body as a string.
func (c *HTTPClient) GetText(ctx context.Context, url string) (string, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// GetJSON fetches url and decodes the body into v.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, v any) error {
	header := http.Header{"Accept": []string{"application/json"}}
	resp, err := c.read(ctx, http.MethodGet, url, nil, header)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// Post sends body with the given content type.
func (c *HTTPClient) Post(ctx context.Context, url, contentType string, body []byte) (*Response, error) {
	header := http.Header{"Content-Type": []string{contentType}}
	return c.read(ctx, http.MethodPost, url, bytes.NewReader(body), header)
}

// Head returns the response headers of url.
func (c *HTTPClient) Head(ctx context.Context, url string) (http.Header, error) {
	resp, err := c.Do(ctx, http.MethodHead, url, nil, nil)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()
	return resp.Header, nil
}

// DecodeBody converts body to UTF-8 based on the declared or sniffed charset.
// XML payloads are returned untouched since their prolog drives decoding.
func DecodeBody(body []byte, contentType string) []byte {
	if isXML(contentType) || bytes.HasPrefix(bytes.TrimSpace(body), []byte("<?xml")) {
		return body
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || enc == nil {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}

func isXML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasSuffix(mt, "/xml") || strings.HasSuffix(mt, "+xml")
}
