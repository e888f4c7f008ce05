package main

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/discussd/internal/client"
	"github.com/codefionn/discussd/internal/command"
	"github.com/codefionn/discussd/internal/gateway"
	"github.com/codefionn/discussd/internal/session"
	"github.com/codefionn/discussd/internal/storage/memory"
)

func TestWithRequestID(t *testing.T) {
	line, err := withRequestID("abcdefg|SIGN_IN|alice")
	require.NoError(t, err)
	assert.Equal(t, "abcdefg|SIGN_IN|alice", line)

	line, err = withRequestID("SIGN_IN|alice")
	require.NoError(t, err)
	assert.Regexp(t, `^[a-z]{7}\|SIGN_IN\|alice$`, line)

	line, err = withRequestID("SIGN_OUT")
	require.NoError(t, err)
	assert.Regexp(t, `^[a-z]{7}\|SIGN_OUT$`, line)
}

func TestPrinterPlain(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)
	require.False(t, p.styled)

	p.prompt()
	p.reply("abcdefg")
	p.reply("abcdefg|qwertyu")
	p.failure("SIGN_IN required")
	p.push("qwertyu")

	assert.Equal(t, "abcdefg\nabcdefg|qwertyu\nerror: SIGN_IN required\nDISCUSSION_UPDATED qwertyu\n", out.String())
}

func TestRunShell(t *testing.T) {
	sessions := session.NewDirectory()
	store := memory.New()
	defer store.Close()
	disp := command.NewDispatcher(nil, command.Deps{Sessions: sessions, Discussions: store})

	srv := gateway.NewServer(gateway.Options{Addr: "127.0.0.1:0"}, sessions, disp)
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go srv.Serve(ctx)
	defer srv.Stop()

	c, err := client.Dial(ctx, srv.Addr().String())
	require.NoError(t, err)

	input := strings.Join([]string{
		"SIGN_IN|alice",
		"",
		"abcdefg|CREATE_DISCUSSION|doc.intro|Hello",
		"LIST_DISCUSSIONS",
		"CREATE_REPLY|only-one",
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runShell(ctx, c, strings.NewReader(input), newPrinter(&out)))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Regexp(t, regexp.MustCompile(`^[a-z]{7}$`), lines[0])
	assert.Regexp(t, regexp.MustCompile(`^abcdefg\|[a-z]{7}$`), lines[1])
	assert.Regexp(t, regexp.MustCompile(`^[a-z]{7}\|\([a-z]{7}\|doc\.intro\|\(alice\|Hello\)\)$`), lines[2])
	assert.Equal(t, "error: CREATE_REPLY action requires two parameters", lines[3])
}
