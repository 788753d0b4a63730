package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArgs(t *testing.T) {
	args, err := SplitArgs(`-movflags +faststart -metadata title="My Title" -vf "scale=1280:-1"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"-movflags", "+faststart", "-metadata", "title=My Title", "-vf", "scale=1280:-1"}, args)

	_, err = SplitArgs(`-metadata title="unterminated`)
	assert.Error(t, err)
}

func TestSanitizeArgs(t *testing.T) {
	t.Run("valid extra arguments", func(t *testing.T) {
		args, _ := SplitArgs(`-movflags +faststart -vf "scale=1280:-1"`)
		assert.NoError(t, SanitizeArgs(args))
	})

	t.Run("disallowed character (semicolon)", func(t *testing.T) {
		args, _ := SplitArgs(`-vf scale=1280:-1; ls`)
		err := SanitizeArgs(args)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disallowed character found in argument: scale=1280:-1;")
	})

	t.Run("disallowed character (dollar)", func(t *testing.T) {
		args, _ := SplitArgs(`-vf "crop=$(($RANDOM))"`)
		err := SanitizeArgs(args)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disallowed character")
	})

	t.Run("extra input rejected", func(t *testing.T) {
		args, _ := SplitArgs(`-i /etc/passwd`)
		err := SanitizeArgs(args)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "may not add inputs")
	})

	t.Run("file-referencing options rejected", func(t *testing.T) {
		for _, opt := range []string{"-passlogfile", "-filter_script", "-fpre"} {
			err := SanitizeArgs([]string{opt, "/tmp/x"})
			assert.Error(t, err, opt)
		}
	})
}
