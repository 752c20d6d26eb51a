package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ishanjain/ift/pkg/rfc"
)

func newRFCCmd() *cobra.Command {
	var nonForwardable bool
	cmd := &cobra.Command{
		Use:   "rfc [name]",
		Short: "Dump an address classification table",
		Long: `'rfc' prints the special-purpose address registry ift classifies with.
The only table is 6890, which is also the default.

With --non-forwardable it prints instead the minimal list of prefixes that
FilterForwardable drops.
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "6890"
			if len(args) > 0 {
				name = args[0]
			}
			if name != "6890" {
				return fmt.Errorf("unknown rfc [%s]", name)
			}
			cmd.SilenceUsage = true

			table := rfc.Default()
			if nonForwardable {
				return printNonForwardable(cmd.OutOrStdout(), table)
			}
			printTable(cmd.OutOrStdout(), table.Entries())
			return nil
		},
	}
	cmd.Flags().BoolVar(&nonForwardable, "non-forwardable", false,
		"Print the coalesced prefixes that are not forwardable")
	return cmd
}

func printTable(w io.Writer, entries []rfc.Entry) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Prefix.String(),
			e.Name,
			e.RFC,
			strconv.FormatBool(e.Source),
			strconv.FormatBool(e.Destination),
			strconv.FormatBool(e.Forwardable),
			strconv.FormatBool(e.Global),
			strconv.FormatBool(e.ReservedByProtocol),
		})
	}
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"PREFIX", "NAME", "RFC", "SOURCE", "DESTINATION", "FORWARDABLE", "GLOBAL", "RESERVED"})
	table.AppendBulk(rows)
	table.Render()
}

func printNonForwardable(w io.Writer, t *rfc.Table) error {
	set, err := t.Set(func(e rfc.Entry) bool { return !e.Forwardable })
	if err != nil {
		return err
	}
	for _, p := range set.Prefixes() {
		fmt.Fprintln(w, p)
	}
	return nil
}
