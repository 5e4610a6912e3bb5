// Package main provides the entry point for the pepfetch CLI.
//
// pepfetch downloads Python Enhancement Proposals listed in the python.org
// PEP index, extracts the rendered body of each one and stores it as
// plain text for offline use.
//
// Usage:
//
//	pepfetch
//	pepfetch fetch 8 20 484
//	pepfetch history
//
// See --help for all available options.
package main

// main is the entry point for pepfetch.
func main() {
	Execute()
}
