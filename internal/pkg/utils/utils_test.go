package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		0:             "0.00 B",
		999:           "999.00 B",
		1000:          "0.98 KB",
		1024:          "1.00 KB",
		1536:          "1.50 KB",
		1048576:       "1.00 MB",
		5 << 30:       "5.00 GB",
		-10:           "0.00 B",
		1099511627776: "1.00 TB",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatSize(in), "bytes=%d", in)
	}
}

func TestSplitFileName(t *testing.T) {
	cases := []struct{ full, name, ext string }{
		{"report.pdf", "report", "pdf"},
		{"archive.tar.gz", "archive.tar", "gz"},
		{"README", "README", ""},
		{".env", ".env", ""},
		{"trailing.", "trailing.", ""},
	}
	for _, tc := range cases {
		name, ext := SplitFileName(tc.full)
		assert.Equal(t, tc.name, name, tc.full)
		assert.Equal(t, tc.ext, ext, tc.full)
	}
}

func TestValidateName(t *testing.T) {
	assert.True(t, ValidateName("docs"))
	assert.True(t, ValidateName("季度报告"))
	assert.False(t, ValidateName(""))
	assert.False(t, ValidateName(".."))
	assert.False(t, ValidateName("a/b"))
	assert.False(t, ValidateName("a\\b"))
}

func TestNumberedName(t *testing.T) {
	assert.Equal(t, "report", NumberedName("report", 0))
	assert.Equal(t, "report (3)", NumberedName("report", 3))
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(7, "alice", []string{"move_folders"}, "secret", "go-drive", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, "secret", "go-drive")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.UserID)
	assert.Equal(t, []string{"move_folders"}, claims.Capabilities)

	_, err = ParseToken(token, "other-secret", "go-drive")
	assert.Error(t, err)
	_, err = ParseToken(token, "secret", "someone-else")
	assert.Error(t, err)
}
