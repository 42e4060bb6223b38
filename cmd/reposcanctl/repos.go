package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/reposcan/internal/application"
)

func newReposCmd(open opener) *cobra.Command {
	cobraCmd := &cobra.Command{
		Use:   "repos",
		Short: "Manage tracked repositories",
	}

	cobraCmd.AddCommand(
		newReposListCmd(open),
		newReposAddCmd(open),
		newReposRemoveCmd(open),
		newReposDeleteCmd(open),
	)

	return cobraCmd
}

func newReposListCmd(open opener) *cobra.Command {
	var user string

	cobraCmd := &cobra.Command{
		Use:   "list",
		Short: "List the repositories a user is registered for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDirectory(cmd, open, func(ctx context.Context, dir directory) error {
				repos, err := dir.FindAllReposByUser(ctx, user)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(repos) == 0 {
					_, err := fmt.Fprintf(out, "No repositories for %s\n", user)
					return err
				}

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tGIT URL\tUSERS")
				for _, repo := range repos {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", repo.ID, repo.Name, repo.GitURL, strings.Join(repo.Users, ","))
				}
				return tw.Flush()
			})
		},
	}

	cobraCmd.Flags().StringVar(&user, "user", "", "user identifier")
	_ = cobraCmd.MarkFlagRequired("user")

	return cobraCmd
}

func newReposAddCmd(open opener) *cobra.Command {
	var p application.RepoParams

	cobraCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user for a repository, creating it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if p.RepoID <= 0 {
				return fmt.Errorf("--id must be a positive repository ID")
			}

			return withDirectory(cmd, open, func(ctx context.Context, dir directory) error {
				m, err := dir.GetOrInsertRepo(ctx, p)
				if err != nil {
					return err
				}

				state := "already registered"
				switch {
				case m.Created:
					state = "created"
				case m.UserAdded:
					state = "user added"
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d %s: %s (users: %s)\n",
					m.Repo.ID, m.Repo.Name, state, strings.Join(m.Repo.Users, ","))
				return err
			})
		},
	}

	flags := cobraCmd.Flags()
	flags.StringVar(&p.UserID, "user", "", "user identifier")
	flags.Int64Var(&p.RepoID, "id", 0, "repository ID")
	flags.StringVar(&p.Name, "name", "", "repository name")
	flags.StringVar(&p.GitURL, "git-url", "", "clone URL")
	flags.StringVar(&p.HTMLURL, "html-url", "", "browsable URL used for the webhook")
	for _, name := range []string{"user", "id", "name", "git-url", "html-url"} {
		_ = cobraCmd.MarkFlagRequired(name)
	}

	return cobraCmd
}

func newReposRemoveCmd(open opener) *cobra.Command {
	var (
		user    string
		repoID  int64
		htmlURL string
	)

	cobraCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a user from a repository, deleting it when no users remain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDirectory(cmd, open, func(ctx context.Context, dir directory) error {
				r, err := dir.RemoveUserFromRepo(ctx, user, repoID, htmlURL)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if r.RepoDeleted {
					_, err = fmt.Fprintf(out, "%d: last user removed, repository deleted\n", repoID)
					return err
				}
				_, err = fmt.Fprintf(out, "%d: %s removed, %d user(s) remain\n", repoID, user, r.Remaining)
				return err
			})
		},
	}

	flags := cobraCmd.Flags()
	flags.StringVar(&user, "user", "", "user identifier")
	flags.Int64Var(&repoID, "id", 0, "repository ID")
	flags.StringVar(&htmlURL, "html-url", "", "browsable URL (derived from the clone URL when empty)")
	_ = cobraCmd.MarkFlagRequired("user")
	_ = cobraCmd.MarkFlagRequired("id")

	return cobraCmd
}

func newReposDeleteCmd(open opener) *cobra.Command {
	var (
		user    string
		repoID  int64
		htmlURL string
	)

	cobraCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a repository for all users and remove its webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDirectory(cmd, open, func(ctx context.Context, dir directory) error {
				if err := dir.RemoveRepo(ctx, user, repoID, htmlURL); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d: repository deleted\n", repoID)
				return err
			})
		},
	}

	flags := cobraCmd.Flags()
	flags.StringVar(&user, "user", "", "user whose token removes the webhook")
	flags.Int64Var(&repoID, "id", 0, "repository ID")
	flags.StringVar(&htmlURL, "html-url", "", "browsable URL of the repository")
	for _, name := range []string{"user", "id", "html-url"} {
		_ = cobraCmd.MarkFlagRequired(name)
	}

	return cobraCmd
}
