// SPDX-License-Identifier: MIT
package remote

import (
	"errors"
	"fmt"
)

// ErrNetwork wraps transport-level failures: refused connections, timeouts,
// DNS errors.
var ErrNetwork = errors.New("network error")

// HTTPStatusError reports a response outside 2xx.
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string // Leading bytes of the response body.
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}
