package ports

import (
	"context"
	"net/http"
)

// Response is a completed HTTP exchange. Non-2xx statuses are still responses.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Transport performs a single GET. It must not retry.
type Transport interface {
	Get(ctx context.Context, url string, header http.Header) (*Response, error)
}
