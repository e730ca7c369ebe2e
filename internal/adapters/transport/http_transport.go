package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ghalamif/SensorLens/internal/ports"
)

// HTTPTransport performs plain GETs. The default client has no timeout, so a
// hung server blocks the request until ctx is cancelled.
type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Get(ctx context.Context, url string, header http.Header) (*ports.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &ports.Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}, nil
}

var _ ports.Transport = (*HTTPTransport)(nil)
