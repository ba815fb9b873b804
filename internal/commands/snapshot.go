package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgercore/internal/gitops"
)

const (
	snapshotAuthor = "ledgercore"
	snapshotEmail  = "ledgercore@localhost"
)

func newSnapshotCommand(opts *globalOptions) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Commit the workspace's config, chart and audit log to git",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := opts.root()
			if err != nil {
				return err
			}
			if !gitops.IsRepo(root) {
				if err := gitops.Init(cmd.Context(), root); err != nil {
					return err
				}
			}
			hash, err := gitops.Snapshot(cmd.Context(), root, message, snapshotAuthor, snapshotEmail)
			if err != nil {
				return err
			}
			if hash == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to commit")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Committed %s\n", hash)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "snapshot", "commit message")
	return cmd
}
