// Package protocol implements the discussd line protocol.
//
// Every client request is one newline-terminated line of '|'-separated
// fields:
//
//	request_id|ACTION|param1|param2|...\n
//
// request_id is exactly seven lowercase ASCII letters and is echoed as the
// first field of the matching response:
//
//	request_id\n
//	request_id|value1|value2\n
//
// The action name is not echoed. A failed request is answered with the
// failure message alone, on one line.
//
// Server-initiated pushes share the stream and are distinguished by their
// first field:
//
//	DISCUSSION_UPDATED|discussion_id\n
//
// Discussions render as
//
//	discussion_id|reference|(author|comment)(author|comment)...
//
// where a comment holding a comma, a delimiter, a parenthesis, a double quote
// or a line break is fenced in double quotes (see Fence).
package protocol
