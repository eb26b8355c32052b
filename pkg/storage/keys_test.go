package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fileID   string
		ownerID  string
		filename string
		want     string
	}{
		{
			name:     "regular extension",
			fileID:   "f1",
			ownerID:  "u1",
			filename: "report.csv",
			want:     "users/u1/f1.csv",
		},
		{
			name:     "multiple dots use last segment",
			fileID:   "f1",
			ownerID:  "u1",
			filename: "archive.tar.gz",
			want:     "users/u1/f1.gz",
		},
		{
			name:     "no extension",
			fileID:   "f1",
			ownerID:  "u1",
			filename: "README",
			want:     "users/u1/f1",
		},
		{
			name:     "dotfile has no extension",
			fileID:   "f1",
			ownerID:  "u1",
			filename: ".env",
			want:     "users/u1/f1",
		},
		{
			name:     "trailing dot has no extension",
			fileID:   "f1",
			ownerID:  "u1",
			filename: "weird.",
			want:     "users/u1/f1",
		},
		{
			name:     "extension is sanitized",
			fileID:   "f1",
			ownerID:  "u1",
			filename: "evil.c/sv",
			want:     "users/u1/f1.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, BuildKey(tt.fileID, tt.ownerID, tt.filename))
		})
	}
}

func TestBuildKey_EncodesFileID(t *testing.T) {
	t.Parallel()

	key := BuildKey("7b6d3a8e", "owner", "photo.png")
	require.Contains(t, key, "7b6d3a8e")
	require.Contains(t, key, "owner")
}
