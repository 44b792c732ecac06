// Package fetcher is the HTTP transport of the mirror.
//
// An HTTPFetcher turns a URL into a model.Content: the decoded body, its
// media type, the status code and the URL after redirects. Everything that
// makes fetching polite and robust lives here so the crawler never sees it:
//   - a global limit on requests in flight (x/sync/semaphore)
//   - a per-host rate limit (x/time/rate), one limiter per host
//   - retries with exponential backoff on network errors, 429 and 5xx
//   - gzip, deflate and brotli decoding
//   - a body size limit
//   - user agent, header and cookie injection
//
// Design decision: The underlying *http.Client is injectable so the same
// fetcher runs over the clearnet or through Tor (internal/tor builds the
// SOCKS5 client). Header and cookie injection is a RoundTripper wrapper and
// therefore also applies to redirects.
package fetcher
