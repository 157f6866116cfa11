package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixml/vectorizer"
	domain "github.com/helixml/vectorizer/domain/vectorizer"
)

func statusCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "status [ID]",
		Short: "Show vectorizers and their queue backlog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 1 {
				parsed, err := parseID(args[0])
				if err != nil {
					return err
				}
				id = parsed
			}
			return withClient(load, func(ctx context.Context, client *vectorizer.Client) error {
				var rows []domain.Status
				if id > 0 {
					row, err := client.Status.Get(ctx, id)
					if err != nil {
						return err
					}
					rows = append(rows, row)
				} else {
					all, err := client.Status.List(ctx)
					if err != nil {
						return err
					}
					rows = all
				}
				return writeStatus(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func writeStatus(out io.Writer, rows []domain.Status) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tTARGET\tVIEW\tPENDING")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Source, r.Target, r.View, formatStatusPending(r.PendingItems))
	}
	return w.Flush()
}

// formatPending renders the bounded-count sentinel as a lower bound.
func formatPending(n int64) string {
	if n == domain.BacklogSentinel {
		return fmt.Sprintf(">%d", domain.BacklogCap)
	}
	return fmt.Sprintf("%d", n)
}

// formatStatusPending renders a missing queue as "-".
func formatStatusPending(n *int64) string {
	if n == nil {
		return "-"
	}
	return formatPending(*n)
}

func pendingCmd(load configLoader) *cobra.Command {
	var exact bool

	cmd := &cobra.Command{
		Use:   "pending ID",
		Short: "Count the rows waiting in a vectorizer's queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(load, func(ctx context.Context, client *vectorizer.Client) error {
				n, err := client.Status.Pending(ctx, id, exact)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), formatPending(n))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&exact, "exact", false, "Count every queued row instead of stopping at the cap")

	return cmd
}
