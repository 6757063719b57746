package replay

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ContentRequest identifies one piece of archived content to replay.
type ContentRequest struct {
	User      string
	Coll      string
	Rec       string
	Timestamp string
	URL       string
}

// Renderer serves archived content for a content request. Implementations
// write the full response, including status and headers.
type Renderer interface {
	RenderContent(w http.ResponseWriter, r *http.Request, req ContentRequest) error
}

// ProxyRenderer forwards content requests to the upstream replay host and
// streams its response back unchanged.
type ProxyRenderer struct {
	// BaseURL is the replay host root, e.g. "http://localhost:8080".
	BaseURL string
	Client  *http.Client
	Log     *zap.Logger
}

// NewProxyRenderer creates a renderer targeting the replay host at baseURL.
func NewProxyRenderer(baseURL string, log *zap.Logger) *ProxyRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProxyRenderer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{},
		Log:     log,
	}
}

// RenderContent proxies the request upstream. The upstream path mirrors the
// public content URL layout: /{user}/{coll}/{rec}/{timestamp}/{url}.
func (p *ProxyRenderer) RenderContent(w http.ResponseWriter, r *http.Request, req ContentRequest) error {
	upstream := p.upstreamURL(req)

	proxyReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstream, nil)
	if err != nil {
		return fmt.Errorf("building replay request: %w", err)
	}
	copyHopHeaders(proxyReq.Header, r.Header)

	resp, err := p.Client.Do(proxyReq)
	if err != nil {
		return fmt.Errorf("replay host unreachable: %w", err)
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Response already committed; log and move on.
		p.Log.Warn("replay stream interrupted",
			zap.String("url", req.URL), zap.Error(err))
	}
	return nil
}

func (p *ProxyRenderer) upstreamURL(req ContentRequest) string {
	path := fmt.Sprintf("/%s/%s", req.User, req.Coll)
	if req.Rec != "" {
		path += "/" + req.Rec
	}
	if req.Timestamp != "" {
		path += "/" + req.Timestamp
	}
	return p.BaseURL + path + "/" + req.URL
}

// copyHopHeaders forwards the request headers replay cares about while
// dropping connection-scoped ones.
func copyHopHeaders(dst, src http.Header) {
	for _, name := range []string{"Accept", "Accept-Encoding", "Accept-Language", "User-Agent", "Range", "Referer"} {
		if v := src.Get(name); v != "" {
			dst.Set(name, v)
		}
	}
}
