package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/downloads"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

func newDownloadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Manage portal download sessions",
	}

	cmd.AddCommand(
		newDownloadStartCmd(a),
		newDownloadStatusCmd(a),
		newDownloadCancelCmd(a),
		newDownloadResumeCmd(a),
		newDownloadFilesCmd(a),
		newDownloadFailedCmd(a),
		newDownloadResetCmd(a),
	)
	return cmd
}

func sessionPath(id string) string {
	return "/downloads/sessions/" + url.PathEscape(id)
}

// waitSession polls a session until it reaches a terminal status, then prints it.
func (a *app) waitSession(ctx context.Context, id string) error {
	var s downloads.Session
	err := Poll(ctx, a.interval, func(ctx context.Context) (bool, error) {
		if err := a.client.Do(ctx, "GET", sessionPath(id), nil, nil, &s); err != nil {
			return false, err
		}
		return s.Terminal(), nil
	})
	if err != nil {
		return err
	}
	return a.print(s)
}

func newDownloadStartCmd(a *app) *cobra.Command {
	var (
		start downloads.StartCommand
		wait  bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a download session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s downloads.Session
			if err := a.client.Do(cmd.Context(), "POST", "/downloads/sessions", nil, start, &s); err != nil {
				return err
			}
			if !wait {
				return a.print(s)
			}
			return a.waitSession(cmd.Context(), s.ID.String())
		},
	}

	f := cmd.Flags()
	f.StringVar(&start.SourceType, "source-type", downloads.SourceClaims, "claims, statement, or transfer")
	f.IntVar(&start.Params.FiscalYear, "fiscal-year", 0, "fiscal year (Buddhist or Gregorian)")
	f.IntVar(&start.Params.Month, "month", 0, "month 1-12")
	f.StringVar(&start.Params.DateFrom, "from", "", "start date")
	f.StringVar(&start.Params.DateTo, "to", "", "end date")
	f.StringSliceVar(&start.Params.Schemes, "scheme", nil, "insurance schemes (repeatable)")
	f.IntVar(&start.Params.MaxWorkers, "workers", 0, "parallel workers (0 uses the server default)")
	f.BoolVar(&wait, "wait", false, "poll until the session finishes")
	return cmd
}

func newDownloadStatusCmd(a *app) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show a session's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait {
				return a.waitSession(cmd.Context(), args[0])
			}
			var s downloads.Session
			if err := a.client.Do(cmd.Context(), "GET", sessionPath(args[0]), nil, nil, &s); err != nil {
				return err
			}
			return a.print(s)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the session finishes")
	return cmd
}

func newDownloadCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s downloads.Session
			if err := a.client.Do(cmd.Context(), "POST", sessionPath(args[0])+"/cancel", nil, nil, &s); err != nil {
				return err
			}
			return a.print(s)
		},
	}
}

func newDownloadResumeCmd(a *app) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a cancelled or failed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s downloads.Session
			if err := a.client.Do(cmd.Context(), "POST", sessionPath(args[0])+"/resume", nil, nil, &s); err != nil {
				return err
			}
			if !wait {
				return a.print(s)
			}
			return a.waitSession(cmd.Context(), args[0])
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the session finishes")
	return cmd
}

func newDownloadFilesCmd(a *app) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "files <session-id>",
		Short: "List a session's files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			var files []downloads.File
			if err := a.client.Do(cmd.Context(), "GET", sessionPath(args[0])+"/files", q, nil, &files); err != nil {
				return err
			}
			return a.print(files)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only files in this status")
	return cmd
}

func newDownloadFailedCmd(a *app) *cobra.Command {
	var (
		sourceType string
		page       int
		pageSize   int
	)

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List failed files across sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if sourceType != "" {
				q.Set("source_type", sourceType)
			}
			if page > 0 {
				q.Set("page", strconv.Itoa(page))
			}
			if pageSize > 0 {
				q.Set("page_size", strconv.Itoa(pageSize))
			}
			var result pagination.PageResult[downloads.FailedFile]
			if err := a.client.Do(cmd.Context(), "GET", "/downloads/failed", q, nil, &result); err != nil {
				return err
			}
			return a.print(result)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sourceType, "source-type", "", "only files of this source type")
	f.IntVar(&page, "page", 0, "page number")
	f.IntVar(&pageSize, "page-size", 0, "page size")
	return cmd
}

func newDownloadResetCmd(a *app) *cobra.Command {
	var sourceType, filename string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return failed files to pending so their sessions can resume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filters downloads.FailedFilters
			if sourceType != "" {
				filters.SourceType = &sourceType
			}
			if filename != "" {
				filters.Filename = &filename
			}
			var result downloads.ResetResult
			if err := a.client.Do(cmd.Context(), "POST", "/downloads/failed/reset", nil, filters, &result); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "reset %d file(s)\n", result.Reset)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceType, "source-type", "", "only files of this source type")
	cmd.Flags().StringVar(&filename, "filename", "", "only the file with this name")
	return cmd
}
