package tor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Options selects how Connect reaches the Tor network.
type Options struct {
	// External uses the proxy at ProxyAddress instead of an embedded daemon.
	External bool

	// ProxyAddress is the SOCKS5 address of the external daemon.
	ProxyAddress string

	// Timeout is the HTTP client timeout of the returned Client.
	Timeout time.Duration

	// StartupTimeout bounds the bootstrap of the embedded daemon.
	StartupTimeout time.Duration

	// Logger receives progress messages; nil means slog.Default.
	Logger *slog.Logger
}

// Connect returns a Client ready to fetch through Tor and a function that
// releases it. With External set, the proxy is checked first; otherwise an
// embedded daemon is started and stop shuts it down.
func Connect(ctx context.Context, opts Options) (client *Client, stop func() error, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	noop := func() error { return nil }

	if opts.External {
		client, err = NewClient(opts.ProxyAddress, opts.Timeout)
		if err != nil {
			return nil, noop, err
		}
		if status := client.CheckConnection(ctx); status != ProxyStatusOK {
			return nil, noop, fmt.Errorf("tor proxy %s: %w", opts.ProxyAddress, status.Err())
		}
		logger.Info("using external Tor proxy", "address", opts.ProxyAddress)
		return client, noop, nil
	}

	logger.Info("starting embedded Tor daemon, this may take a few minutes")
	embedded := NewEmbeddedTor(WithStartupTimeout(opts.StartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return nil, noop, err
	}

	client, err = embedded.NewClient(opts.Timeout)
	if err != nil {
		_ = embedded.Stop() //nolint:errcheck // Best effort cleanup
		return nil, noop, err
	}
	logger.Info("embedded Tor daemon ready", "socks", embedded.SocksAddr())
	return client, embedded.Stop, nil
}
