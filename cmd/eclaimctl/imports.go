package main

import (
	"context"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/imports"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load downloaded files into the domain tables",
	}

	cmd.AddCommand(
		newImportRunCmd(a),
		newImportFileCmd(a),
		newImportStatusCmd(a),
		newImportCancelCmd(a),
	)
	return cmd
}

func progressPath(schema string) string {
	return "/imports/progress/" + url.PathEscape(schema)
}

// followImport prints p, or polls the schema's progress until the job stops
// running when wait is set.
func (a *app) followImport(ctx context.Context, p imports.Progress, wait bool) error {
	if !wait {
		return a.print(p)
	}
	schema := p.Schema
	err := Poll(ctx, a.interval, func(ctx context.Context) (bool, error) {
		if err := a.client.Do(ctx, "GET", progressPath(schema), nil, nil, &p); err != nil {
			return false, err
		}
		return !p.Running, nil
	})
	if err != nil {
		return err
	}
	return a.print(p)
}

func newImportRunCmd(a *app) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "run <schema>",
		Short: "Import every pending file of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p imports.Progress
			if err := a.client.Do(cmd.Context(), "POST", "/imports/"+url.PathEscape(args[0]), nil, nil, &p); err != nil {
				return err
			}
			return a.followImport(cmd.Context(), p, wait)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the import finishes")
	return cmd
}

func newImportFileCmd(a *app) *cobra.Command {
	var (
		schema string
		wait   bool
	)

	cmd := &cobra.Command{
		Use:   "file <filename>",
		Short: "Import one stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/imports/files/" + url.PathEscape(args[0])
			if schema != "" {
				path = "/imports/" + url.PathEscape(schema) + "/files/" + url.PathEscape(args[0])
			}
			var p imports.Progress
			if err := a.client.Do(cmd.Context(), "POST", path, nil, nil, &p); err != nil {
				return err
			}
			return a.followImport(cmd.Context(), p, wait)
		},
	}

	cmd.Flags().StringVar(&schema, "schema", "", "schema to use instead of detecting it")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the import finishes")
	return cmd
}

func newImportStatusCmd(a *app) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "status <schema>",
		Short: "Show the latest import job for a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p imports.Progress
			if err := a.client.Do(cmd.Context(), "GET", progressPath(args[0]), nil, nil, &p); err != nil {
				return err
			}
			return a.followImport(cmd.Context(), p, wait)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the import finishes")
	return cmd
}

func newImportCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <schema>",
		Short: "Stop a running import after its current batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p imports.Progress
			if err := a.client.Do(cmd.Context(), "DELETE", "/imports/"+url.PathEscape(args[0]), nil, nil, &p); err != nil {
				return err
			}
			return a.print(p)
		},
	}
}
