package main

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/codefionn/discussd/internal/protocol"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	requestIDStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	pushStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Italic(true)
)

// printer renders server lines, styled only when writing to a terminal.
type printer struct {
	out    io.Writer
	styled bool
}

func newPrinter(out io.Writer) *printer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &printer{out: out, styled: styled}
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *printer) prompt() {
	if p.styled {
		io.WriteString(p.out, p.render(promptStyle, "discuss> "))
	}
}

// reply prints a response line, dimming its request id.
func (p *printer) reply(line string) {
	id, rest, found := strings.Cut(line, "|")
	if !found {
		io.WriteString(p.out, p.render(requestIDStyle, id)+"\n")
		return
	}
	io.WriteString(p.out, p.render(requestIDStyle, id+"|")+p.render(replyStyle, rest)+"\n")
}

func (p *printer) failure(msg string) {
	io.WriteString(p.out, p.render(errorStyle, "error: "+msg)+"\n")
}

// push prints the id of an updated discussion.
func (p *printer) push(discussionID string) {
	io.WriteString(p.out, p.render(pushStyle, protocol.NotificationAction+" "+discussionID)+"\n")
}
