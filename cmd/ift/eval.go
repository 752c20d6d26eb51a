package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ishanjain/ift/pkg/netif"
	"github.com/ishanjain/ift/pkg/socket"
	"github.com/ishanjain/ift/pkg/template"
)

type evalFlags struct {
	strict bool
	remote bool
}

func (f *evalFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.strict, "strict", false,
		"Fail when FilterFirst or FilterLast see an empty selection")
	cmd.Flags().BoolVar(&f.remote, "remote", false,
		"Evaluate inside the running iftd instead of locally")
}

func newEvalCmd(root *rootFlags) *cobra.Command {
	var flags evalFlags
	cmd := &cobra.Command{
		Use:   "eval <template>",
		Short: "Evaluate an ift template",
		Long: `'eval' prints every address the template selects, as [a b c].

Unless --remote is given the template runs against this host's interfaces.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			addrs, err := runEval(root.socket, args[0], flags)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s]\n", strings.Join(addrs, " "))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newEvalsCmd(root *rootFlags) *cobra.Command {
	var flags evalFlags
	cmd := &cobra.Command{
		Use:   "evals <template>",
		Short: "Evaluate an ift template and print the first address",
		Long: `'evals' prints the first address the template selects, or nothing when the
selection is empty.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			addrs, err := runEval(root.socket, args[0], flags)
			if err != nil {
				return err
			}
			if len(addrs) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), addrs[0])
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func runEval(socketPath, tmpl string, flags evalFlags) ([]string, error) {
	if flags.remote {
		var addrs []string
		if err := call(socketPath, socket.Command{Command: "eval", Args: []string{tmpl}}, &addrs); err != nil {
			return nil, err
		}
		return addrs, nil
	}

	p, err := template.Parse(tmpl)
	if err != nil {
		return nil, err
	}
	snap, err := host.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate interfaces: %w", err)
	}
	e := template.NewEvaluator(template.Options{StrictSelection: flags.strict})
	list, err := e.Evaluate(p, snap)
	if err != nil {
		return nil, err
	}
	return addrStrings(list), nil
}

func addrStrings(list []netif.Address) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.String()
	}
	return out
}
