package protocol

import (
	"strings"

	"github.com/codefionn/discussd/internal/discussion"
)

const fenceChars = ",|\"()\r\n"

var fenceEscaper = strings.NewReplacer(`"`, `""`, `\`, `\\`, "\r", `\r`, "\n", `\n`)

// Fence wraps s in double quotes when it contains a character that would make
// the positional reply rendering ambiguous. Embedded quotes are doubled,
// backslashes are doubled and line breaks are written as \r and \n escapes.
// Other strings are returned unchanged.
func Fence(s string) string {
	if !strings.ContainsAny(s, fenceChars) {
		return s
	}
	return `"` + fenceEscaper.Replace(s) + `"`
}

// RenderDiscussion renders d as discussion_id|reference|(author|comment)...
func RenderDiscussion(d *discussion.Discussion) string {
	var b strings.Builder
	b.WriteString(d.ID)
	b.WriteByte('|')
	b.WriteString(d.Reference)
	if len(d.Replies) > 0 {
		b.WriteByte('|')
	}
	for _, r := range d.Replies {
		b.WriteByte('(')
		b.WriteString(r.AuthorID)
		b.WriteByte('|')
		b.WriteString(Fence(r.Comment))
		b.WriteByte(')')
	}
	return b.String()
}

// DiscussionResponse renders a GET_DISCUSSION response.
func DiscussionResponse(requestID string, d *discussion.Discussion) Response {
	return NewResponse(requestID, RenderDiscussion(d))
}

// DiscussionListResponse renders a LIST_DISCUSSIONS response: one
// parenthesised discussion per entry, concatenated.
func DiscussionListResponse(requestID string, ds []*discussion.Discussion) Response {
	if len(ds) == 0 {
		return NewResponse(requestID)
	}
	var b strings.Builder
	for _, d := range ds {
		b.WriteByte('(')
		b.WriteString(RenderDiscussion(d))
		b.WriteByte(')')
	}
	return NewResponse(requestID, b.String())
}
