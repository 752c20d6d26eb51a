package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ishanjain/ift/pkg/config"
	"github.com/ishanjain/ift/pkg/socket"
)

// call sends one command to iftd and decodes the reply into v
func call(socketPath string, cmd socket.Command, v interface{}) error {
	resp, err := socket.Send(socketPath, cmd)
	if err != nil {
		return fmt.Errorf("%w\nIs iftd running?", err)
	}
	return resp.Decode(v)
}

var (
	statusGood = color.New(color.FgGreen)
	statusBad  = color.New(color.FgRed)
	statusWarn = color.New(color.FgYellow)
	keys       = color.New(color.FgHiCyan)
)

func newStatusCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show iftd status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			var status socket.StatusResponse
			if err := call(root.socket, socket.Command{Command: "status"}, &status); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func printStatus(w io.Writer, status socket.StatusResponse) {
	field := func(name string, value interface{}) {
		fmt.Fprintf(w, "  %s %v\n", keys.Sprintf("%-14s", name+":"), value)
	}

	if status.Ready {
		field("Ready", statusGood.Sprint("✓ yes"))
	} else {
		field("Ready", statusWarn.Sprint("⚠ no (initial resolve pending)"))
	}
	field("Config", status.ConfigPath)
	field("Bindings", status.BindingCount)
	if status.FailingCount > 0 {
		field("Failing", statusBad.Sprint(status.FailingCount))
	} else {
		field("Failing", statusGood.Sprint(0))
	}
	field("Interfaces", status.InterfaceCount)
	field("Poll interval", fmt.Sprintf("%ds", status.PollInterval))
	if !status.LastResolved.IsZero() {
		field("Last resolved", status.LastResolved.Format(time.RFC3339))
	}
}

func newListCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List resolved bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			var bindings []socket.BindingInfo
			if err := call(root.socket, socket.Command{Command: "list"}, &bindings); err != nil {
				return err
			}
			printBindings(cmd.OutOrStdout(), bindings)
			return nil
		},
	}
}

func newResolveCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <name>",
		Short: "Re-resolve one binding now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			var info socket.BindingInfo
			if err := call(root.socket, socket.Command{Command: "resolve", Args: args}, &info); err != nil {
				return err
			}
			printBindings(cmd.OutOrStdout(), []socket.BindingInfo{info})
			return nil
		},
	}
}

func bindingState(b socket.BindingInfo) string {
	switch {
	case b.Error != "":
		return statusBad.Sprint("✗ " + b.Error)
	case len(b.Addresses) == 0 && b.Required:
		return statusBad.Sprint("✗ no addresses")
	case len(b.Addresses) == 0:
		return statusWarn.Sprint("⚠ empty")
	default:
		return statusGood.Sprint("✓ ok")
	}
}

func printBindings(w io.Writer, bindings []socket.BindingInfo) {
	if len(bindings) == 0 {
		fmt.Fprintln(w, "No bindings resolved.")
		return
	}

	rows := make([][]string, 0, len(bindings))
	for _, b := range bindings {
		port := "-"
		if b.Port > 0 {
			port = fmt.Sprint(b.Port)
		}
		addrs := "-"
		if len(b.Addresses) > 0 {
			addrs = strings.Join(b.Addresses, " ")
		}
		rows = append(rows, []string{b.Name, port, addrs, bindingState(b)})
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
	table.SetHeader([]string{"NAME", "PORT", "ADDRESSES", "STATE"})
	table.AppendBulk(rows)
	table.Render()
}

func newHealthCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show iftd health server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			resp, err := http.Get(strings.TrimSuffix(url, "/") + "/status")
			if err != nil {
				return fmt.Errorf("failed to connect to health endpoint: %w\nIs iftd running with health enabled?", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}

			var pretty map[string]interface{}
			if err := json.Unmarshal(body, &pretty); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:8081", "Health server base URL")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var (
		path  string
		check bool
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Open or check the iftd config file",
		Long: `'config' opens the daemon config in $EDITOR. iftd reloads it on save.

With --check it only validates the file, including every binding template.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("config file not found: %s", path)
			}

			if check {
				cfg, err := config.LoadFromFile(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d binding(s), %d enabled\n",
					statusGood.Sprint("✓"), path, len(cfg.Bindings), len(cfg.GetEnabledBindings()))
				return nil
			}

			editor := editorCommand(cmd.OutOrStdout(), path)
			editor.Stdin = os.Stdin
			editor.Stdout = os.Stdout
			editor.Stderr = os.Stderr
			if err := editor.Run(); err != nil {
				return fmt.Errorf("failed to open config: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", config.DefaultConfigPath(), "Config file path")
	cmd.Flags().BoolVar(&check, "check", false, "Validate the config instead of editing it")
	return cmd
}
