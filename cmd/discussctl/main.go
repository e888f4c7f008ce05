// Package main provides discussctl, a command line client for discussd.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codefionn/discussd/internal/client"
)

var (
	serverAddr     string
	connectTimeout time.Duration
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discussctl",
		Short: "Talk to a discussd server",
		Long: `discussctl speaks the discussd line protocol.

Usage modes:
  discussctl shell                      Interactive session, one request per line
  discussctl send ACTION [PARAM...]     Send one request and print the response
  discussctl watch --user U             Sign in and print discussion updates`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&serverAddr, "addr", "a", "127.0.0.1:8989", "discussd address")
	cmd.PersistentFlags().DurationVar(&connectTimeout, "timeout", 10*time.Second, "Connect timeout")

	cmd.AddCommand(
		shellCmd(),
		sendCmd(),
		watchCmd(),
	)
	return cmd
}

func dial(ctx context.Context) (*client.Client, error) {
	cfg := client.DefaultConfig()
	cfg.ConnectTimeout = connectTimeout
	return client.DialWithConfig(ctx, serverAddr, cfg)
}

// signIn claims userID for the connection when userID is set.
func signIn(ctx context.Context, c *client.Client, userID string) error {
	if userID == "" {
		return nil
	}
	if _, err := c.Do(ctx, "SIGN_IN", userID); err != nil {
		return fmt.Errorf("sign in as %s: %w", userID, err)
	}
	return nil
}
