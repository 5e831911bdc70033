package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher retrieves the versioned policy document from a remote source.
// Transport failures surface as *FetchError (fail open: the caller
// keeps serving the prior policy); malformed documents surface as
// *LoadError (fail closed: the document is rejected whole).
type Fetcher struct {
	url    string
	client *http.Client
}

// NewFetcher creates a Fetcher for the given policy URL.
func NewFetcher(url string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads and validates the policy document.
func (f *Fetcher) Fetch(ctx context.Context) (*PolicyFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &FetchError{URL: f.url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: f.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: f.url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &FetchError{URL: f.url, Err: err}
	}

	return LoadBytes(data)
}

// IsTransient reports whether err is a transport-level fetch failure,
// as opposed to a schema rejection.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
