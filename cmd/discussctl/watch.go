package main

import (
	"os"

	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print discussion updates for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := signIn(ctx, c, userID); err != nil {
				return err
			}

			p := newPrinter(os.Stdout)
			for {
				select {
				case <-ctx.Done():
					return nil
				case id, ok := <-c.Notifications():
					if !ok {
						return c.Err()
					}
					p.push(id)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User to watch (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
