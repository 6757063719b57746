// handlers_content.go - Archived-content replay dispatch
package api

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/webarchive/backend/internal/replay"
)

// ContentHandlerImpl implements the ContentHandler interface
type ContentHandlerImpl struct {
	renderer replay.Renderer
}

// NewContentHandler creates a new content handler instance
func NewContentHandler(renderer replay.Renderer) ContentHandler {
	return &ContentHandlerImpl{renderer: renderer}
}

// HandleContent dispatches a replay request of the form
// /{user}/{coll}/{timestamp}/{url} or /{user}/{coll}/{url}. Rendering
// itself is delegated to the replay engine.
func (h *ContentHandlerImpl) HandleContent(c echo.Context) error {
	req := replay.ContentRequest{
		User: c.Param("user"),
		Coll: c.Param("coll"),
	}

	rest := c.Param("*")
	if head, tail, ok := strings.Cut(rest, "/"); ok && replay.IsTimestamp(head) {
		req.Timestamp = head
		req.URL = tail
	} else {
		req.URL = rest
	}
	if req.URL == "" {
		return NewBadRequestError("missing content url", nil)
	}

	if err := h.renderer.RenderContent(c.Response(), c.Request(), req); err != nil {
		return NewInternalError("replay failed", err)
	}
	return nil
}
