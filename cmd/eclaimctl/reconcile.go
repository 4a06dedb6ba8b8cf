package main

import (
	"net/url"

	"github.com/spf13/cobra"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/reconcile"
)

func newReconcileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute and query reconciliation results",
	}

	cmd.AddCommand(
		newReconcileRunCmd(a),
		newReconcileQueryCmd(a),
	)
	return cmd
}

func newReconcileRunCmd(a *app) *cobra.Command {
	var keys []string

	cmd := &cobra.Command{
		Use:   "run [pair]",
		Short: "Recompute one pair, or every pair when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs := args
			if len(pairs) == 0 {
				for _, p := range reconcile.Pairs() {
					pairs = append(pairs, p.Name)
				}
			}

			var body any
			if len(keys) > 0 {
				body = map[string][]string{"keys": keys}
			}

			out := make([]reconcile.Summary, 0, len(pairs))
			for _, pair := range pairs {
				var s reconcile.Summary
				path := "/reconciliation/" + url.PathEscape(pair) + "/recompute"
				if err := a.client.Do(cmd.Context(), "POST", path, nil, body, &s); err != nil {
					return err
				}
				out = append(out, s)
			}
			return a.print(out)
		},
	}

	cmd.Flags().StringSliceVar(&keys, "key", nil, "limit the recompute to these keys")
	return cmd
}

func newReconcileQueryCmd(a *app) *cobra.Command {
	var (
		req    reconcile.QueryRequest
		status string
	)

	cmd := &cobra.Command{
		Use:   "query <pair>",
		Short: "Page through a pair's results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				req.Status = &status
			}

			var res reconcile.QueryResult
			path := "/reconciliation/" + url.PathEscape(args[0]) + "/search"
			if err := a.client.Do(cmd.Context(), "POST", path, nil, req, &res); err != nil {
				return err
			}
			return a.print(res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&status, "status", "", "matched, amount_diff, missing_source_a, or missing_source_b")
	f.StringSliceVar(&req.Keys, "key", nil, "only results involving these keys")
	f.BoolVar(&req.Refresh, "refresh", false, "recompute before reading")
	f.IntVar(&req.Page, "page", 1, "page number")
	f.IntVar(&req.PageSize, "page-size", 0, "page size")
	return cmd
}
