package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ishanjain/ift/pkg/config"
	"github.com/ishanjain/ift/pkg/netif"
)

const version = "0.1.0"

// host is the interface source for local evaluation
var host netif.Enumerator = netif.Host

type rootFlags struct {
	socket  string
	noColor bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:     "ift",
		Short:   "Select bind addresses with interface templates",
		Version: version,
		Long: `'ift' evaluates interface templates such as

    GetAllInterfaces | FilterFlags "up" | FilterForwardable | FilterFirst

against the host's interfaces, dumps the address classification table, and
queries a running iftd daemon over its control socket.
`,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				color.NoColor = true
			}
		},
	}

	cmd.PersistentFlags().StringVar(&flags.socket, "socket", defaultSocketPath(),
		"iftd control socket (env IFTD_SOCKET)")
	cmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newEvalCmd(&flags),
		newEvalsCmd(&flags),
		newRFCCmd(),
		newStatusCmd(&flags),
		newListCmd(&flags),
		newResolveCmd(&flags),
		newHealthCmd(),
		newConfigCmd(),
	)
	return cmd
}

func defaultSocketPath() string {
	if path := os.Getenv("IFTD_SOCKET"); path != "" {
		return path
	}
	return config.DefaultSocketPath()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
