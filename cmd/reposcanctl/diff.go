package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/reposcan/internal/domain/diff"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <left> <right>",
		Short: "Partition two comma-separated lists into left-only, right-only and common items",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := diff.Compare(splitItems(args[0]), splitItems(args[1]))

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "left only:  %s\nright only: %s\nboth:       %s\n",
				strings.Join(r.LeftOnly, ","),
				strings.Join(r.RightOnly, ","),
				strings.Join(r.Intersect, ","),
			)
			return err
		},
	}
}

func splitItems(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
