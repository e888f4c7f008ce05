package protocol

import "strings"

// NotificationAction is the first field of a server push.
const NotificationAction = "DISCUSSION_UPDATED"

// Response is a successful reply to a request.
type Response struct {
	RequestID string
	Fields    []string
}

// NewResponse builds a response for requestID.
func NewResponse(requestID string, fields ...string) Response {
	return Response{RequestID: requestID, Fields: fields}
}

// String serializes the response as one newline-terminated line.
func (r Response) String() string {
	var b strings.Builder
	b.WriteString(r.RequestID)
	for _, f := range r.Fields {
		b.WriteByte('|')
		b.WriteString(f)
	}
	b.WriteByte('\n')
	return b.String()
}

// Notification returns the push line announcing that discussionID changed.
func Notification(discussionID string) string {
	return NotificationAction + "|" + discussionID + "\n"
}

// ErrorLine renders err as a single protocol line.
func ErrorLine(err error) string {
	msg := strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(err.Error())
	return msg + "\n"
}
