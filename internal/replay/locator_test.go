package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator_FindArchiveForURL(t *testing.T) {
	l := NewLocator(nil)

	tests := []struct {
		name     string
		url      string
		wantOK   bool
		sourceID string
		origURL  string
	}{
		{
			name:     "wayback capture with timestamp",
			url:      "http://web.archive.org/web/20170101000000/http://example.com/page",
			wantOK:   true,
			sourceID: "ia:20170101000000",
			origURL:  "http://example.com/page",
		},
		{
			name:     "wayback capture with replay modifier",
			url:      "https://web.archive.org/web/20170101id_/http://example.com/",
			wantOK:   true,
			sourceID: "ia:20170101id_",
			origURL:  "http://example.com/",
		},
		{
			name:     "prefix without timestamp",
			url:      "http://www.webcitation.org/abc123",
			wantOK:   true,
			sourceID: "webcite",
			origURL:  "abc123",
		},
		{
			name:   "unknown host",
			url:    "http://example.com/web/20170101/foo",
			wantOK: false,
		},
		{
			name:   "prefix only",
			url:    "http://web.archive.org/web/",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := l.FindArchiveForURL(tt.url)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.sourceID, m.SourceID)
			assert.Equal(t, tt.origURL, m.OrigURL)
		})
	}
}

func TestIsTimestamp(t *testing.T) {
	assert.True(t, IsTimestamp("20170101000000"))
	assert.True(t, IsTimestamp("2017"))
	assert.True(t, IsTimestamp("20170101id_"))
	assert.False(t, IsTimestamp("201"))
	assert.False(t, IsTimestamp("abcd"))
	assert.False(t, IsTimestamp("201701010000001"))
}

func TestLocator_CustomArchives(t *testing.T) {
	l := NewLocator([]Archive{{ID: "own", Name: "Own Archive", Prefix: "http://archive.local/"}})

	m, ok := l.FindArchiveForURL("http://archive.local/20200101000000/http://x/")
	require.True(t, ok)
	assert.Equal(t, "own:20200101000000", m.SourceID)

	_, ok = l.FindArchiveForURL("http://web.archive.org/web/20170101/http://x/")
	assert.False(t, ok)
}
