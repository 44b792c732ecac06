package tor

import (
	"errors"
	"testing"
	"time"
)

// TestNewEmbeddedTor tests EmbeddedTor construction and options.
func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		opts     []EmbeddedTorOption
		expected time.Duration
	}{
		{"default timeout", nil, DefaultStartupTimeout},
		{"custom timeout", []EmbeddedTorOption{WithStartupTimeout(5 * time.Minute)}, 5 * time.Minute},
		{"zero keeps default", []EmbeddedTorOption{WithStartupTimeout(0)}, DefaultStartupTimeout},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			embedded := NewEmbeddedTor(tc.opts...)
			if embedded.startupTimeout != tc.expected {
				t.Errorf("startupTimeout = %v, want %v", embedded.startupTimeout, tc.expected)
			}
		})
	}
}

// TestEmbeddedTorBeforeStart tests EmbeddedTor methods without starting Tor.
func TestEmbeddedTorBeforeStart(t *testing.T) {
	t.Parallel()

	embedded := NewEmbeddedTor()
	if embedded.IsRunning() {
		t.Error("expected IsRunning to be false before start")
	}
	if embedded.SocksAddr() != "" || embedded.ControlAddr() != "" {
		t.Error("expected empty addresses before start")
	}
	if err := embedded.Stop(); err != nil {
		t.Errorf("Stop on unstarted instance: %v", err)
	}
	if _, err := embedded.NewClient(30 * time.Second); !errors.Is(err, ErrNotRunning) {
		t.Errorf("NewClient error = %v, want ErrNotRunning", err)
	}
}
