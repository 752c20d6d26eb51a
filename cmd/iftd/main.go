package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/ishanjain/ift/pkg/config"
	"github.com/ishanjain/ift/pkg/daemon"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to the daemon config")
	socketPath := flag.String("socket", "", "override server.socket_path")
	outputFile := flag.String("output", "", "override server.output_file")
	verbose := flag.Bool("v", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("iftd version %s\n", version)
		os.Exit(0)
	}

	flags := map[string]interface{}{
		"socket": *socketPath,
		"output": *outputFile,
		"v":      *verbose,
	}
	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.MergeWithFlags(flags)

	logger := newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)

	d, err := daemon.New(*configPath, logger,
		daemon.WithConfig(cfg),
		daemon.WithFlagOverrides(flags),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger maps log_level onto funcr verbosity: error hides Info, debug
// shows V(1).
func newLogger(level, format string) logr.Logger {
	opts := funcr.Options{Verbosity: 0}
	switch level {
	case "debug":
		opts.Verbosity = 1
	case "error":
		opts.Verbosity = -1
	}

	if format == "json" {
		return funcr.NewJSON(func(obj string) {
			fmt.Println(obj)
		}, opts)
	}
	return funcr.New(func(p, a string) {
		if p != "" {
			fmt.Printf("%s: %s\n", p, a)
		} else {
			fmt.Println(a)
		}
	}, opts)
}
