// Package main provides waymark, a command-line front end for the bookmark
// engine. It keeps file bookmarks per project and branch and line bookmarks
// per file, in the same store an editor integration uses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0" // Version of waymark

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, newApp(os.Stdout, os.Stderr), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
