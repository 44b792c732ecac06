// Package config provides configuration structures and utilities for
// sitemirror. It defines the mirror settings (admission limits, transport
// politeness, naming, output), the per-site overrides read from the
// .sitemirror file and the XDG directories used for state.
package config
