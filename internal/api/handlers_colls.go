// handlers_colls.go - Collection and recording CRUD handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/webarchive/backend/internal/domain"
	"github.com/webarchive/backend/internal/models"
)

// CollectionHandlerImpl implements the CollectionHandler interface
type CollectionHandlerImpl struct {
	store *domain.Store
}

// NewCollectionHandler creates a new collection handler instance
func NewCollectionHandler(store *domain.Store) CollectionHandler {
	return &CollectionHandlerImpl{store: store}
}

type createCollectionRequest struct {
	User        string `json:"user"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Desc        string `json:"desc"`
	Public      bool   `json:"public"`
	PublicIndex bool   `json:"public_index"`
}

func (r *createCollectionRequest) validate() error {
	if r.User == "" {
		return NewBadRequestError("user is required", nil)
	}
	if r.Name == "" && r.Title == "" {
		return NewBadRequestError("name or title is required", nil)
	}
	return nil
}

// HandleCreateCollection creates a collection for a user
func (h *CollectionHandlerImpl) HandleCreateCollection(c echo.Context) error {
	var req createCollectionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	coll, err := h.store.CreateCollection(c.Request().Context(), req.User, req.Name, domain.CollectionOpts{
		Title:       req.Title,
		Desc:        req.Desc,
		Public:      req.Public,
		PublicIndex: req.PublicIndex,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDupeName) {
			return NewConflictError("collection name already in use")
		}
		return NewInternalError("failed to create collection", err)
	}

	return c.JSON(http.StatusCreated, coll)
}

// HandleListCollections lists a user's collections
func (h *CollectionHandlerImpl) HandleListCollections(c echo.Context) error {
	user := c.QueryParam("user")
	if user == "" {
		return NewBadRequestError("user is required", nil)
	}

	colls, err := h.store.ListCollections(c.Request().Context(), user)
	if err != nil {
		return NewInternalError("failed to list collections", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"collections": colls})
}

// HandleGetCollection returns one collection by name
func (h *CollectionHandlerImpl) HandleGetCollection(c echo.Context) error {
	coll, err := h.resolveCollection(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, coll)
}

type updateCollectionRequest struct {
	Title       *string `json:"title"`
	Desc        *string `json:"desc"`
	Public      *bool   `json:"public"`
	PublicIndex *bool   `json:"public_index"`
}

// HandleUpdateCollection patches mutable collection properties
func (h *CollectionHandlerImpl) HandleUpdateCollection(c echo.Context) error {
	coll, err := h.resolveCollection(c)
	if err != nil {
		return err
	}

	var req updateCollectionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if req.Title != nil {
		coll.Title = *req.Title
	}
	if req.Desc != nil {
		coll.Desc = *req.Desc
	}
	if req.Public != nil {
		coll.Public = *req.Public
	}
	if req.PublicIndex != nil {
		coll.PublicIndex = *req.PublicIndex
	}

	if err := h.store.UpdateCollection(c.Request().Context(), coll); err != nil {
		return NewInternalError("failed to update collection", err)
	}
	return c.JSON(http.StatusOK, coll)
}

// HandleDeleteCollection removes a collection and everything under it
func (h *CollectionHandlerImpl) HandleDeleteCollection(c echo.Context) error {
	user := c.QueryParam("user")
	if user == "" {
		return NewBadRequestError("user is required", nil)
	}
	name := c.Param("coll")

	if err := h.store.DeleteCollection(c.Request().Context(), user, name); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return NewNotFoundError("collection", name)
		}
		return NewInternalError("failed to delete collection", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleListRecordings lists a collection's recordings
func (h *CollectionHandlerImpl) HandleListRecordings(c echo.Context) error {
	coll, err := h.resolveCollection(c)
	if err != nil {
		return err
	}

	recs, lerr := h.store.ListRecordings(c.Request().Context(), coll.ID)
	if lerr != nil {
		return NewInternalError("failed to list recordings", lerr)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"recordings": recs})
}

// HandleGetRecording returns one recording by id
func (h *CollectionHandlerImpl) HandleGetRecording(c echo.Context) error {
	recID := c.Param("rec")
	rec, err := h.store.GetRecording(c.Request().Context(), recID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return NewNotFoundError("recording", recID)
		}
		return NewInternalError("failed to read recording", err)
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleListPages lists a collection's detected and imported pages
func (h *CollectionHandlerImpl) HandleListPages(c echo.Context) error {
	coll, err := h.resolveCollection(c)
	if err != nil {
		return err
	}

	pages, lerr := h.store.ListPages(c.Request().Context(), coll.ID)
	if lerr != nil {
		return NewInternalError("failed to list pages", lerr)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"pages": pages})
}

// HandleListBookmarkLists lists a collection's bookmark lists
func (h *CollectionHandlerImpl) HandleListBookmarkLists(c echo.Context) error {
	coll, err := h.resolveCollection(c)
	if err != nil {
		return err
	}

	lists, lerr := h.store.ListBookmarkLists(c.Request().Context(), coll.ID)
	if lerr != nil {
		return NewInternalError("failed to list bookmark lists", lerr)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"lists": lists})
}

// HandleListBookmarks lists the bookmarks of one list
func (h *CollectionHandlerImpl) HandleListBookmarks(c echo.Context) error {
	listID := c.Param("list")
	bookmarks, err := h.store.ListBookmarks(c.Request().Context(), listID)
	if err != nil {
		return NewInternalError("failed to list bookmarks", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"bookmarks": bookmarks})
}

// resolveCollection loads the collection named by the :coll path param for
// the user in the query string.
func (h *CollectionHandlerImpl) resolveCollection(c echo.Context) (*models.Collection, *APIError) {
	user := c.QueryParam("user")
	if user == "" {
		return nil, NewBadRequestError("user is required", nil)
	}
	name := c.Param("coll")

	collection, err := h.store.GetCollectionByName(c.Request().Context(), user, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, NewNotFoundError("collection", name)
		}
		return nil, NewInternalError("failed to read collection", err)
	}
	return collection, nil
}
