package renamer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "movie.mkv", want: "movie.mkv"},
		{name: "path separators", in: "../etc/passwd", want: "_etc_passwd"},
		{name: "reserved", in: `a:b*c?"d<e>f|g\h`, want: "a_b_c__d_e_f_g_h"},
		{name: "control characters", in: "bad\x00na\nme.txt", want: "badname.txt"},
		{name: "trims spaces and dots", in: "  .hidden.  ", want: "hidden"},
		{name: "unicode", in: "видео 🎬.mp4", want: "видео 🎬.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeFileName(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeFileNameRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "...", "\x01\x02", strings.Repeat("a", 256)} {
		_, err := SanitizeFileName(in)
		assert.ErrorIs(t, err, ErrInvalidFileName, "input %q", in)
	}

	got, err := SanitizeFileName(strings.Repeat("é", 255))
	require.NoError(t, err)
	assert.Len(t, []rune(got), 255)
}

func TestApplyPrefix(t *testing.T) {
	assert.Equal(t, "movie.mkv", ApplyPrefix("", "movie.mkv"))
	assert.Equal(t, "[TM] movie.mkv", ApplyPrefix("[TM] ", "movie.mkv"))
	assert.Equal(t, "[TM] movie.mkv", ApplyPrefix("[TM] ", "[TM] movie.mkv"))
}
