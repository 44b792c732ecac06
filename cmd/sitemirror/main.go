// Package main provides the entry point for the sitemirror CLI.
//
// sitemirror downloads a website together with the stylesheets, images,
// scripts and fonts its pages use, and rewrites every reference so that the
// copy can be browsed offline.
//
// Usage:
//
//	sitemirror mirror <url>...
//	sitemirror history [host]
//
// See --help for all available options.
package main

// main is the entry point for sitemirror.
func main() {
	Execute()
}
