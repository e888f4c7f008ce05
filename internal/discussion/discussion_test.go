package discussion

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDShape(t *testing.T) {
	shape := regexp.MustCompile(`^[a-z]{7}$`)
	for i := 0; i < 100; i++ {
		id, err := NewID()
		require.NoError(t, err)
		assert.Regexp(t, shape, id)
	}
}

func TestReferencePrefix(t *testing.T) {
	assert.Equal(t, "abc123", ReferencePrefix("abc123.20s"))
	assert.Equal(t, "single", ReferencePrefix("single"))
	assert.Equal(t, "", ReferencePrefix(""))
}

func TestParticipantsAndRecipients(t *testing.T) {
	d := &Discussion{
		ID:        "abcdefg",
		Reference: "ref.1",
		OwnerID:   "alice",
		Replies: []Reply{
			{AuthorID: "alice", Comment: "first"},
			{AuthorID: "bob", Comment: "second"},
			{AuthorID: "carol", Comment: "third"},
			{AuthorID: "bob", Comment: "fourth"},
		},
	}

	assert.Equal(t, []string{"alice", "bob", "carol"}, d.Participants())
	assert.Equal(t, []string{"alice", "carol"}, Recipients(d, "bob"))
	assert.Equal(t, []string{"alice", "bob", "carol"}, Recipients(d, "dave"))
	assert.Equal(t, "ref", d.Prefix())
}
