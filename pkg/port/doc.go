// Package port provides the request-execution core every outbound
// integration is built on.
//
// A Port is bound to one external service configuration. The credential is
// fixed at construction, so a call resolves nothing at call time and
// composes:
//
//	build request -> inject auth -> retry engine(send -> size guard -> decode) -> classify failure
//
// Every call returns a Result carrying either decoded data or a classified
// Error, plus execution metadata (final status, duration, retries performed,
// and a payload size-cost estimate) on both paths.
//
// Two construction entry points exist: New accepts a pre-resolved credential
// and performs no I/O, which keeps tests deterministic; Resolve looks the
// credential up through a secrets store (and, for oauth services, exchanges
// client credentials for an access token) and fails fast when resolution
// fails, since a port without a usable credential cannot safely be used.
//
// Example usage:
//
//	cfg := port.ServiceConfig{
//	    Name:    "linear",
//	    BaseURL: "https://api.linear.app",
//	    Auth:    port.AuthConfig{Type: port.AuthBearer, CredentialKey: "api-token"},
//	}
//	p, err := port.Resolve(ctx, cfg, store)
//	if err != nil {
//	    return err
//	}
//	res := port.Request[Issue](ctx, p, port.MethodGet, "/issues/ENG-1", nil)
//	if res.Err != nil {
//	    return res.Err
//	}
package port
