// Command playdrop accepts archive uploads, extracts them safely and serves
// the result under a public prefix until the retention window expires.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keithlinneman/playdrop/internal/cfg"
	v "github.com/keithlinneman/playdrop/internal/version"
)

const envPrefix = "PLAYDROP_"

func main() {
	var conf cfg.App
	cfg.Register(flag.CommandLine, &conf)
	showVersion := flag.Bool("V", false, "print version and build information and exit")
	flag.Parse()

	vi := v.Get()
	if *showVersion {
		fmt.Println(vi)
		return
	}

	cfg.FillFromEnv(flag.CommandLine, envPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, vi); err != nil {
		fmt.Fprintln(os.Stderr, "playdrop:", err)
		stop()
		os.Exit(1)
	}
}
