// Package main provides the entry point for the webmirror CLI.
//
// Webmirror downloads a website to a local directory tree: it fetches
// pages breadth-first from a seed URL, downloads their embedded
// resources, and rewrites references so the mirror browses offline.
//
// Usage:
//
//	webmirror mirror https://example.com
//	webmirror mirror -d 2 -o ./mirror https://example.com
//
// See --help for all available options.
package main

// main is the entry point for webmirror.
func main() {
	Execute()
}
