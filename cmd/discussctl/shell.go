package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/codefionn/discussd/internal/client"
	"github.com/codefionn/discussd/internal/discussion"
	"github.com/codefionn/discussd/internal/protocol"
)

func shellCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive protocol session",
		Long: `Read request lines from stdin and print every response and update.

Lines may omit the request id, one is generated for them:
  SIGN_IN|alice
  CREATE_DISCUSSION|doc.intro|First comment
  abcdefg|GET_DISCUSSION|qwertyu`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if err := signIn(cmd.Context(), c, userID); err != nil {
				return err
			}
			return runShell(cmd.Context(), c, os.Stdin, newPrinter(os.Stdout))
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Sign in as this user before reading input")
	return cmd
}

// withRequestID prefixes line with a fresh request id unless it already
// starts with one.
func withRequestID(line string) (string, error) {
	first, _, _ := strings.Cut(line, "|")
	if protocol.ValidRequestID(first) {
		return line, nil
	}
	id, err := discussion.NewID()
	if err != nil {
		return "", err
	}
	return id + "|" + line, nil
}

func runShell(ctx context.Context, c *client.Client, in io.Reader, p *printer) error {
	var outMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for id := range c.Notifications() {
			outMu.Lock()
			p.push(id)
			outMu.Unlock()
		}
	}()
	defer wg.Wait()
	defer c.Close()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	outMu.Lock()
	p.prompt()
	outMu.Unlock()
	for {
		var raw string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			if err := c.Err(); err != nil && !errors.Is(err, client.ErrClosed) {
				return err
			}
			return nil
		case raw, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			outMu.Lock()
			p.prompt()
			outMu.Unlock()
			continue
		}

		req, err := withRequestID(line)
		if err != nil {
			return fmt.Errorf("generate request id: %w", err)
		}
		resp, err := c.Send(ctx, req)
		if err != nil {
			return err
		}

		outMu.Lock()
		id, _, _ := strings.Cut(req, "|")
		if resp == id || strings.HasPrefix(resp, id+"|") {
			p.reply(resp)
		} else {
			p.failure(resp)
		}
		p.prompt()
		outMu.Unlock()
	}
}
