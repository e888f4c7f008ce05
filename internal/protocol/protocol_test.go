package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/discussd/internal/discussion"
)

var catalogActions = []string{
	"SIGN_IN", "SIGN_OUT", "WHOAMI",
	"CREATE_DISCUSSION", "CREATE_REPLY", "GET_DISCUSSION", "LIST_DISCUSSIONS",
}

func TestParseKeepsRequestIDAndAction(t *testing.T) {
	for _, id := range []string{"abcdefg", "ougmcim", "zzzzzzz"} {
		for _, action := range catalogActions {
			req, err := Parse(id + "|" + action)
			require.NoError(t, err)
			assert.Equal(t, id, req.ID)
			assert.Equal(t, action, req.Action)
			assert.Empty(t, req.Params)
		}
	}
}

func TestParseParams(t *testing.T) {
	req, err := Parse("ougmcim|SIGN_IN|janedoe\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"janedoe"}, req.Params)

	req, err = Parse("xthbsuv|LIST_DISCUSSIONS|refprefix\r\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"refprefix"}, req.Params)

	req, err = Parse("abcdefg|SIGN_IN|")
	require.NoError(t, err)
	assert.Empty(t, req.Params)
}

func TestTextParamsKeepsDelimitersInTail(t *testing.T) {
	req, err := Parse(`ykkngzx|CREATE_DISCUSSION|iofetzv.0s|Hey, folks | what do you think of my "polish"?`)
	require.NoError(t, err)

	assert.Equal(t, []string{"iofetzv.0s", "Hey, folks ", " what do you think of my \"polish\"?"}, req.Params)
	assert.Equal(t, []string{"iofetzv.0s", `Hey, folks | what do you think of my "polish"?`}, req.TextParams(2))
	assert.Equal(t, req.Params, req.TextParams(0))
}

func TestTextParamsDropsEmptyFields(t *testing.T) {
	req, err := Parse("ykkngzx|CREATE_DISCUSSION|iofetzv.0s|")
	require.NoError(t, err)
	assert.Equal(t, []string{"iofetzv.0s"}, req.TextParams(2))

	req, err = Parse("ykkngzx|CREATE_DISCUSSION")
	require.NoError(t, err)
	assert.Empty(t, req.TextParams(2))

	req, err = Parse("ykkngzx|CREATE_DISCUSSION|iofetzv.0s||first | comment")
	require.NoError(t, err)
	assert.Equal(t, []string{"iofetzv.0s", "first | comment"}, req.TextParams(2))

	req, err = Parse("ykkngzx|CREATE_DISCUSSION||iofetzv.0s|first")
	require.NoError(t, err)
	assert.Equal(t, []string{"iofetzv.0s", "first"}, req.TextParams(2))
	assert.Equal(t, req.Params, req.TextParams(2))
}

func TestParseRejectsBadRequestIDs(t *testing.T) {
	for _, id := range []string{"abc", "abcdefgh", "ABCDEFG", "abc123", "abc123d", ""} {
		t.Run(id, func(t *testing.T) {
			_, err := Parse(id + "|SIGN_IN|janedoe")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequestID), "got %v", err)
			assert.Equal(t, "Invalid request_id. Must be 7 lowercase letters (a-z)", err.Error())
		})
	}
}

func TestParseRejectsMissingAction(t *testing.T) {
	for _, line := range []string{"abcdefg", "abcdefg|", ""} {
		_, err := Parse(line)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidFormat)
	}
}

func TestValidReference(t *testing.T) {
	for _, ok := range []string{"xqunqcc.1m30s", "abc123.20s", "test.33s", "ref.123", "a.b.c"} {
		assert.True(t, ValidReference(ok), ok)
	}
	for _, bad := range []string{"single", "", ".abc", "abc.", "abc..def", "abc.@.def", "abc.def ghi", "ref,123"} {
		assert.False(t, ValidReference(bad), bad)
	}
}

func TestValidAlphanumeric(t *testing.T) {
	for _, ok := range []string{"janedoe", "jane123", "JANE123"} {
		assert.True(t, ValidAlphanumeric(ok), ok)
	}
	for _, bad := range []string{"jane@doe", "jane doe", ""} {
		assert.False(t, ValidAlphanumeric(bad), bad)
	}
}

func TestResponseString(t *testing.T) {
	assert.Equal(t, "abcdefg\n", NewResponse("abcdefg").String())
	assert.Equal(t, "abcdefg|janedoe\n", NewResponse("abcdefg", "janedoe").String())
	assert.Equal(t, "abcdefg|a|b\n", NewResponse("abcdefg", "a", "b").String())
}

func TestNotificationLine(t *testing.T) {
	assert.Equal(t, "DISCUSSION_UPDATED|qwertyu\n", Notification("qwertyu"))
}

func TestErrorLineIsSingleLine(t *testing.T) {
	assert.Equal(t, "bad thing happened\n", ErrorLine(errors.New("bad thing\nhappened")))
}

func TestFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"test comment", "test comment"},
		{"I love this video. What did you use to make it?", "I love this video. What did you use to make it?"},
		{"test reply, yooo", `"test reply, yooo"`},
		{`I used something called "Synthesia", it's pretty cool!`, `"I used something called ""Synthesia"", it's pretty cool!"`},
		{"a|b", `"a|b"`},
		{"(aside)", `"(aside)"`},
		{"two\nlines", `"two\nlines"`},
		{`literal \n, not a break`, `"literal \\n, not a break"`},
		{`C:\dir`, `C:\dir`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fence(tt.in), tt.in)
	}
}

func TestRenderDiscussion(t *testing.T) {
	d := &discussion.Discussion{
		ID:        "qwertyu",
		Reference: "ref.123",
		OwnerID:   "A",
		Replies: []discussion.Reply{
			{AuthorID: "A", Comment: "test comment"},
			{AuthorID: "B", Comment: "test reply, yooo"},
		},
	}

	assert.Equal(t, `abcdefg|qwertyu|ref.123|(A|test comment)(B|"test reply, yooo")`+"\n",
		DiscussionResponse("abcdefg", d).String())

	other := &discussion.Discussion{ID: "asdfghj", Reference: "vid.2s", OwnerID: "C",
		Replies: []discussion.Reply{{AuthorID: "C", Comment: "hi"}}}
	assert.Equal(t, `abcdefg|(qwertyu|ref.123|(A|test comment)(B|"test reply, yooo"))(asdfghj|vid.2s|(C|hi))`+"\n",
		DiscussionListResponse("abcdefg", []*discussion.Discussion{d, other}).String())
	assert.Equal(t, "abcdefg\n", DiscussionListResponse("abcdefg", nil).String())
}
