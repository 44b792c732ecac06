package fetcher

import "net/http"

// injectingTransport wraps an http.RoundTripper to add a cookie and custom
// headers to every request.
type injectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *injectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}

// withInjection returns a shallow copy of client whose transport injects
// cookie and headers. The original client is not modified.
func withInjection(client *http.Client, cookie string, headers map[string]string) *http.Client {
	if cookie == "" && len(headers) == 0 {
		return client
	}

	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}

	injected := *client
	injected.Transport = &injectingTransport{base: base, cookie: cookie, headers: copied}
	return &injected
}
