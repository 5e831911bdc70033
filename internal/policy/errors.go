package policy

import "fmt"

// LoadError indicates a malformed policy document. The whole document
// is rejected and the prior in-memory policy stays in force.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "policy load: " + e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }

// FetchError indicates a transport failure fetching the remote policy
// source. The caller keeps the last-known-good policy and retries at
// the next scheduled reload.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("policy fetch %s: %v", e.URL, e.Err)
}
func (e *FetchError) Unwrap() error { return e.Err }
