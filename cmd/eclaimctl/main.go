// Command eclaimctl drives a running eclaim server over its HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080/api"

// app carries state shared by every subcommand.
type app struct {
	server   string
	timeout  time.Duration
	interval time.Duration
	out      io.Writer
	client   *Client
}

// print writes v as indented JSON.
func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	server := os.Getenv("ECLAIM_SERVER")
	if server == "" {
		server = defaultServer
	}

	root := &cobra.Command{
		Use:           "eclaimctl",
		Short:         "Control e-Claim downloads, imports, and reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.client = NewClient(a.server, a.timeout)
		},
	}

	root.PersistentFlags().StringVar(&a.server, "server", server, "API base URL (env ECLAIM_SERVER)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "per-request timeout")
	root.PersistentFlags().DurationVar(&a.interval, "interval", 2*time.Second, "poll interval used by --wait")

	root.AddCommand(
		newDownloadCmd(a),
		newImportCmd(a),
		newReconcileCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
