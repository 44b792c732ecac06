// Package tor lets the mirror fetch through the Tor network.
//
// Two modes are supported: an external Tor daemon reached through its SOCKS5
// port, or an embedded daemon started with tornago. Either way the result is
// a Client whose HTTP client is handed to the fetcher, so the crawler itself
// never knows whether it runs over Tor.
//
// Design decision: Onion seeds are validated before anything is started.
// A mistyped v3 address fails its SHA3 checksum and is reported at once,
// instead of after a multi-minute bootstrap and a connection timeout.
package tor
