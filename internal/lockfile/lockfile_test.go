package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	lock := New(filepath.Join(t.TempDir(), "test.lock"))

	require.NoError(t, lock.TryAcquire())
	assert.True(t, lock.Locked())
	assert.Equal(t, os.Getpid(), lock.PID())
	assert.ErrorIs(t, lock.TryAcquire(), ErrLockAcquired)

	require.NoError(t, lock.Release())
	assert.False(t, lock.Locked())
	assert.NoFileExists(t, lock.Path())

	require.NoError(t, lock.TryAcquire())
	require.NoError(t, lock.Release())
}

func TestForStore(t *testing.T) {
	assert.Equal(t, "/var/lib/discussd/discussd.db.lock", ForStore("/var/lib/discussd/discussd.db").Path())
}

func TestSecondLockIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	first := New(path)
	require.NoError(t, first.TryAcquire())
	defer first.Release()

	second := New(path)
	err := second.TryAcquire()
	assert.ErrorIs(t, err, ErrLocked)
	assert.False(t, second.Locked())
}

func TestOldLockOfLiveProcessIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	content := fmt.Sprintf("%d\n%s\n", os.Getpid(), time.Now().Add(-48*time.Hour).Format(time.RFC3339))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	err := New(path).TryAcquire()
	assert.ErrorIs(t, err, ErrLocked)
}

func TestStaleLockIsReplaced(t *testing.T) {
	for name, content := range map[string]string{
		"dead process": "99999999\n" + time.Now().Format(time.RFC3339) + "\n",
		"garbage":      "not a pid\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.lock")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			lock := New(path)
			require.NoError(t, lock.TryAcquire())
			defer lock.Release()
			assert.True(t, lock.Locked())
		})
	}
}

func TestReleaseNotLocked(t *testing.T) {
	assert.NoError(t, New(filepath.Join(t.TempDir(), "test.lock")).Release())
}
