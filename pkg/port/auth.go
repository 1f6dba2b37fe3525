package port

import (
	"fmt"
	"net/http"
)

// applyAuth injects the resolved credential into an outbound request
// according to the declared strategy. It is a pure transform of the request:
// no logging, no I/O. Headers are set by canonical name via http.Header.Set.
func applyAuth(req *http.Request, credential string, auth AuthConfig) error {
	switch auth.Type {
	case AuthQuery:
		q := req.URL.Query()
		q.Set(auth.KeyName, credential)
		req.URL.RawQuery = q.Encode()

	case AuthHeader:
		req.Header.Set(auth.KeyName, credential)

	case AuthBearer, AuthOAuth:
		// An oauth credential is an already-issued access token at this
		// point; acquisition happened at construction.
		req.Header.Set("Authorization", "Bearer "+credential)

	default:
		return fmt.Errorf("unsupported auth type: %q", auth.Type)
	}

	return nil
}
