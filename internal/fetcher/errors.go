package fetcher

import "errors"

var (
	// ErrUnexpectedStatus is recorded when a document request answers outside 2xx.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrBodyTooLarge is recorded when a document exceeds the body size limit.
	ErrBodyTooLarge = errors.New("response body too large")
)
