package replay

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyRenderer_ForwardsUpstreamResponse(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>replayed</html>"))
	}))
	defer upstream.Close()

	p := NewProxyRenderer(upstream.URL, nil)

	req := httptest.NewRequest(http.MethodGet, "/alice/travel/20240501120000/http://example.com/", nil)
	rec := httptest.NewRecorder()

	err := p.RenderContent(rec, req, ContentRequest{
		User:      "alice",
		Coll:      "travel",
		Timestamp: "20240501120000",
		URL:       "http://example.com/",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<html>replayed</html>", rec.Body.String())
	assert.Contains(t, gotPath, "/alice/travel/20240501120000/http:")
	assert.Contains(t, gotPath, "example.com")
}

func TestProxyRenderer_UnreachableUpstream(t *testing.T) {
	p := NewProxyRenderer("http://127.0.0.1:1", nil)

	req := httptest.NewRequest(http.MethodGet, "/a/c/http://example.com/", nil)
	rec := httptest.NewRecorder()

	err := p.RenderContent(rec, req, ContentRequest{User: "a", Coll: "c", URL: "http://example.com/"})
	assert.Error(t, err)
}
