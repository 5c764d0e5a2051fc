package chatgpt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxErrorBodyBytes caps how much of a non-2xx body is kept.
const maxErrorBodyBytes = 1 << 20

// BufferedResponse is a fully read 2xx response.
type BufferedResponse struct {
	StatusCode int
	Body       []byte
}

// Transport performs requests built by BuildRequest. Implementations report
// a non-2xx status as *HTTPStatusError and network failures as
// *TransportError.
type Transport interface {
	Send(ctx context.Context, req *RequestDescriptor) (*BufferedResponse, error)
	SendStreaming(ctx context.Context, req *RequestDescriptor) (LineSource, error)
}

// HTTPTransport is the net/http implementation of Transport.
type HTTPTransport struct {
	httpClient *http.Client
	// streamClient shares the round tripper but has no timeout; the context
	// carries the deadline of a stream.
	streamClient *http.Client
}

// NewHTTPTransport builds a transport with the given timeout for buffered
// calls and an optional proxy URL. An empty proxyURL uses the environment
// proxy settings. A proxyURL that is not an absolute URL yields a
// *ConfigurationError.
func NewHTTPTransport(timeout time.Duration, proxyURL string) (*HTTPTransport, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, &ConfigurationError{Address: proxyURL, Err: err}
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, &ConfigurationError{Address: proxyURL, Err: errors.New("proxy URL needs a scheme and host")}
		}
		transport.Proxy = http.ProxyURL(parsed)
	}

	return &HTTPTransport{
		httpClient:   &http.Client{Timeout: timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
	}, nil
}

// NewHTTPTransportWithClient uses hc for both buffered and streaming calls.
func NewHTTPTransportWithClient(hc *http.Client) *HTTPTransport {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPTransport{httpClient: hc, streamClient: hc}
}

// Send performs a buffered call and reads the whole body.
func (t *HTTPTransport) Send(ctx context.Context, req *RequestDescriptor) (*BufferedResponse, error) {
	resp, err := t.do(ctx, t.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read response", Err: err}
	}
	return &BufferedResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// SendStreaming performs a streaming call. The status is checked once,
// before the body is handed out as a LineSource.
func (t *HTTPTransport) SendStreaming(ctx context.Context, req *RequestDescriptor) (LineSource, error) {
	resp, err := t.do(ctx, t.streamClient, req)
	if err != nil {
		return nil, err
	}
	return NewBodyLineSource(resp.Body), nil
}

func (t *HTTPTransport) do(ctx context.Context, hc *http.Client, req *RequestDescriptor) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header = req.Header.Clone()

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "do request", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: raw}
	}
	return resp, nil
}
