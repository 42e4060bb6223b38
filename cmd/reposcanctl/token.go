package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(open opener) *cobra.Command {
	cobraCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage user access tokens",
	}

	var user, token string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the access token used for a user's webhook calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDirectory(cmd, open, func(ctx context.Context, dir directory) error {
				if err := dir.SaveUserToken(ctx, user, token); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "token saved for %s\n", user)
				return err
			})
		},
	}
	setCmd.Flags().StringVar(&user, "user", "", "user identifier")
	setCmd.Flags().StringVar(&token, "token", "", "access token")
	_ = setCmd.MarkFlagRequired("user")
	_ = setCmd.MarkFlagRequired("token")

	cobraCmd.AddCommand(setCmd)

	return cobraCmd
}
