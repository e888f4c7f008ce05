package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/codefionn/discussd/internal/client"
)

func sendCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "send ACTION [PARAM...]",
		Short: "Send one request and print the response",
		Long: `Send one request and print the response.

Examples:
  discussctl send --user alice CREATE_DISCUSSION doc.intro "First comment"
  discussctl send GET_DISCUSSION qwertyu
  discussctl send LIST_DISCUSSIONS doc`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if err := signIn(cmd.Context(), c, userID); err != nil {
				return err
			}

			p := newPrinter(os.Stdout)
			reply, err := c.Do(cmd.Context(), args[0], args[1:]...)
			var serverErr *client.ServerError
			if errors.As(err, &serverErr) {
				p.failure(serverErr.Message)
				return serverErr
			}
			if err != nil {
				return err
			}
			if reply.Body == "" {
				p.reply(reply.RequestID)
			} else {
				p.reply(reply.RequestID + "|" + reply.Body)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Sign in as this user first")
	return cmd
}
