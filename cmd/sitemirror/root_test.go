package main

import (
	"bytes"
	"strings"
	"testing"
)

// TestNewRootCmd tests the root command creation.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "sitemirror" {
			t.Errorf("expected use 'sitemirror', got %q", cmd.Use)
		}
	})

	t.Run("has version", func(t *testing.T) {
		t.Parallel()
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has global flags", func(t *testing.T) {
		t.Parallel()
		verbose := cmd.PersistentFlags().Lookup("verbose")
		if verbose == nil {
			t.Fatal("expected verbose flag")
		}
		if verbose.Shorthand != "v" || verbose.DefValue != "false" {
			t.Errorf("unexpected verbose flag: -%s default %s", verbose.Shorthand, verbose.DefValue)
		}
		if cmd.PersistentFlags().Lookup("log-json") == nil {
			t.Error("expected log-json flag")
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		want := map[string]bool{"mirror": false, "history": false, "init": false, "version": false}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Name()]; ok {
				want[sub.Name()] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("expected %s subcommand", name)
			}
		}
	})

	t.Run("silences usage and errors", func(t *testing.T) {
		t.Parallel()
		if !cmd.SilenceUsage || !cmd.SilenceErrors {
			t.Error("expected SilenceUsage and SilenceErrors to be true")
		}
	})
}

// TestNewViper tests flag and environment binding.
// It is not parallel because it sets environment variables.
func TestNewViper(t *testing.T) {
	t.Setenv("SITEMIRROR_MAX_PAGES", "42")
	t.Setenv("SITEMIRROR_DEPTH", "7")

	cmd := NewMirrorCmd()
	if err := cmd.ParseFlags([]string{"--depth", "3"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	v, err := newViper(cmd)
	if err != nil {
		t.Fatalf("newViper: %v", err)
	}

	if got := v.GetInt("max-pages"); got != 42 {
		t.Errorf("environment should set max-pages: got %d", got)
	}
	if got := v.GetInt("depth"); got != 3 {
		t.Errorf("explicit flag should win over environment: got %d", got)
	}
	if got := v.GetInt("concurrency"); got != 8 {
		t.Errorf("unset flag should keep its default: got %d", got)
	}
}

// TestSetupLogger tests logger creation.
func TestSetupLogger(t *testing.T) {
	t.Parallel()

	t.Run("text logger redacts cookies", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		setupLogger(&buf, true, false).Debug("request", "cookie", "sid=secret")
		if strings.Contains(buf.String(), "secret") {
			t.Errorf("cookie leaked: %s", buf.String())
		}
	})

	t.Run("json logger", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		setupLogger(&buf, false, true).Warn("slow host", "url", "https://example.com/")
		if !strings.HasPrefix(buf.String(), "{") {
			t.Errorf("expected JSON output, got %s", buf.String())
		}
	})

	t.Run("quiet logger hides debug", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		setupLogger(&buf, false, false).Debug("hidden")
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %s", buf.String())
		}
	})
}
