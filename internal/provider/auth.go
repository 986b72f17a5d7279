package provider

import "net/http"

// authTransport injects configured headers and credentials into every
// outgoing request.
type authTransport struct {
	base    http.RoundTripper
	headers map[string]string
	bearer  string
}

// newAuthTransport wraps base with header injection. The template's endpoint
// headers (which include the resolved auth header) are applied first; a bare
// api_key with no header template falls back to Authorization: Bearer.
func newAuthTransport(base http.RoundTripper, cfg Config) http.RoundTripper {
	bearer := ""
	if cfg.APIKey != "" {
		if _, hasAuthHeader := cfg.Endpoint.Headers[cfg.Authentication.Field]; !hasAuthHeader || cfg.Authentication.Field == "" {
			bearer = cfg.APIKey
		}
	}
	if len(cfg.Endpoint.Headers) == 0 && bearer == "" {
		if base == nil {
			return http.DefaultTransport
		}
		return base
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{base: base, headers: cfg.Endpoint.Headers, bearer: bearer}
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	for name, value := range t.headers {
		r2.Header.Set(name, value)
	}
	if t.bearer != "" {
		r2.Header.Set("Authorization", "Bearer "+t.bearer)
	}
	return t.base.RoundTrip(r2)
}
