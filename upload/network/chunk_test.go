package network

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ackedFromRange(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int64
	}{
		{
			name:   "missing header",
			header: "",
			want:   0,
		},
		{
			name:   "first chunk confirmed",
			header: "bytes=0-16777215",
			want:   16777216,
		},
		{
			name:   "single byte confirmed",
			header: "bytes=0-0",
			want:   1,
		},
		{
			name:   "garbage header",
			header: "bytes=whatever",
			want:   0,
		},
		{
			name:   "missing separator",
			header: "bytes=123",
			want:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ackedFromRange(tt.header); got != tt.want {
				t.Errorf("ackedFromRange() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_parseFileInfo(t *testing.T) {
	t.Run("complete descriptor", func(t *testing.T) {
		body := `{"id":"f1","name":"clip.mp4","size":"42","webViewLink":"v","webContentLink":"c"}`

		info, err := parseFileInfo(strings.NewReader(body), 100)

		require.NoError(t, err)
		assert.Equal(t, "f1", info.ID)
		assert.Equal(t, "clip.mp4", info.Name)
		assert.Equal(t, int64(42), info.Size)
		assert.Equal(t, "v", info.WebViewLink)
		assert.Equal(t, "c", info.WebContentLink)
	})

	t.Run("missing size falls back to the known total", func(t *testing.T) {
		info, err := parseFileInfo(strings.NewReader(`{"id":"f1","name":"clip.mp4"}`), 100)

		require.NoError(t, err)
		assert.Equal(t, int64(100), info.Size)
	})

	t.Run("numeric size is accepted too", func(t *testing.T) {
		info, err := parseFileInfo(strings.NewReader(`{"id":"f1","name":"clip.mp4","size":42}`), 100)

		require.NoError(t, err)
		assert.Equal(t, int64(42), info.Size)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := parseFileInfo(strings.NewReader(`<html>splash page</html>`), 100)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := parseFileInfo(strings.NewReader(`{"name":"clip.mp4"}`), 100)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("mistyped size", func(t *testing.T) {
		_, err := parseFileInfo(strings.NewReader(`{"id":"f1","name":"clip.mp4","size":"many"}`), 100)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}
