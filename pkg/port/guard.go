package port

import (
	"fmt"
	"io"
)

// readBounded reads a response body while enforcing the byte-size ceiling.
// It runs strictly before any structured decoding: an oversized response is
// rejected as a non-retryable client error and never reaches a JSON decoder.
// Read failures classify as retryable network errors.
func readBounded(service string, r io.Reader, ceiling int64) ([]byte, *Error) {
	// Read one byte past the ceiling so an exactly-at-limit body passes and
	// anything larger is detected without reading the full stream.
	body, err := io.ReadAll(io.LimitReader(r, ceiling+1))
	if err != nil {
		return nil, &Error{
			Kind:      KindNetwork,
			Message:   fmt.Sprintf("failed to read response body from %s", service),
			Retryable: true,
			Cause:     err,
		}
	}

	if int64(len(body)) > ceiling {
		return nil, &Error{
			Kind:      KindClient,
			Message:   fmt.Sprintf("response body exceeds limit of %d bytes", ceiling),
			Retryable: false,
		}
	}

	return body, nil
}
