package protocol

import (
	"errors"
	"strings"
)

const minFields = 2

var (
	// ErrInvalidFormat marks a line without a request id and an action.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrInvalidRequestID marks a request id that is not seven lowercase letters.
	ErrInvalidRequestID = errors.New("invalid request id")
)

// FormatError is a protocol-level parse failure. Its message is sent to the
// client verbatim.
type FormatError struct {
	Kind    error
	Message string
}

func (e *FormatError) Error() string { return e.Message }

func (e *FormatError) Unwrap() error { return e.Kind }

// Request is one parsed client line.
type Request struct {
	ID     string
	Action string
	// Params is the remainder split on every delimiter, empty fields dropped.
	Params []string

	rest string
}

// Parse parses one protocol line. Trailing CR/LF are ignored.
func Parse(line string) (*Request, error) {
	line = strings.TrimRight(line, "\r\n")

	parts := strings.SplitN(line, "|", minFields+1)
	if len(parts) < minFields || parts[1] == "" {
		return nil, &FormatError{
			Kind:    ErrInvalidFormat,
			Message: "Invalid format. Expected: request_id|action[|params]",
		}
	}

	if !ValidRequestID(parts[0]) {
		return nil, &FormatError{
			Kind:    ErrInvalidRequestID,
			Message: "Invalid request_id. Must be 7 lowercase letters (a-z)",
		}
	}

	req := &Request{ID: parts[0], Action: parts[1]}
	if len(parts) > minFields {
		req.rest = parts[2]
		req.Params = splitFields(req.rest, -1)
	}
	if req.Params == nil {
		req.Params = []string{}
	}
	return req, nil
}

// TextParams splits the parameter remainder into at most n fields so that the
// last field keeps any literal delimiters (free text). n <= 0 returns Params.
func (r *Request) TextParams(n int) []string {
	if n <= 0 {
		return r.Params
	}
	fields := splitFields(r.rest, n)
	if fields == nil {
		return []string{}
	}
	return fields
}

func splitFields(s string, n int) []string {
	var out []string
	for s != "" {
		if n > 0 && len(out) == n-1 {
			// the last field keeps its delimiters, minus leading empty fields
			if tail := strings.TrimLeft(s, "|"); tail != "" {
				out = append(out, tail)
			}
			break
		}
		f, rest, found := strings.Cut(s, "|")
		if f != "" {
			out = append(out, f)
		}
		if !found {
			break
		}
		s = rest
	}
	return out
}
