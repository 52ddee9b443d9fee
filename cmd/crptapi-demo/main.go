/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command crptapi-demo submits a batch of sample documents through the rate-limited client.
//
// Usage:
//
//	crptapi-demo [--config config.yml] [--fake-registry] [--count 10] [--window 1s] [--max-requests 5]
//
// Configuration values may also be set by environment variables with the CRPTAPI prefix,
// e.g. CRPTAPI_CRPTAPI_LIMITER_MAXREQUESTS=3.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("crptapi-demo", pflag.ContinueOnError)
	var opts demoOpts
	flags.StringVar(&opts.ConfigPath, "config", "", "path to YAML configuration file")
	flags.BoolVar(&opts.FakeRegistry, "fake-registry", false, "start a local fake registry and send documents to it")
	flags.IntVar(&opts.Count, "count", 10, "number of documents to submit")
	flags.DurationVar(&opts.Window, "window", time.Second, "rate limit window (if not set in configuration)")
	flags.IntVar(&opts.MaxRequests, "max-requests", 5, "max requests within the window (if not set in configuration)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if err := runDemo(opts); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "crptapi-demo: %v\n", err)
		return 1
	}
	return 0
}
