package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/webarchive/backend/internal/models"
)

func collPagesKey(id string) string     { return fmt.Sprintf("coll:%s:pages", id) }
func collListsKey(id string) string     { return fmt.Sprintf("coll:%s:lists", id) }
func listInfoKey(id string) string      { return fmt.Sprintf("list:%s:info", id) }
func listBookmarksKey(id string) string { return fmt.Sprintf("list:%s:bookmarks", id) }

// ImportPages adds pages to a collection's page index, attributing them to
// the recording. Each page gets a fresh id; the returned map translates
// source-supplied ids to assigned ones so bookmark references survive the
// import.
func (s *Store) ImportPages(ctx context.Context, collID string, pages []models.Page, recID string) (map[string]string, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	idMap := make(map[string]string, len(pages))
	pipe := s.rdb.TxPipeline()
	for _, page := range pages {
		oldID := page.ID
		page.ID = uuid.New().String()
		page.Recording = recID

		blob, err := msgpack.Marshal(&page)
		if err != nil {
			return nil, fmt.Errorf("encoding page: %w", err)
		}
		pipe.HSet(ctx, collPagesKey(collID), page.ID, blob)

		if oldID != "" {
			idMap[oldID] = page.ID
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("importing pages: %w", err)
	}
	return idMap, nil
}

// ListPages returns all pages in a collection.
func (s *Store) ListPages(ctx context.Context, collID string) ([]models.Page, error) {
	fields, err := s.rdb.HGetAll(ctx, collPagesKey(collID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}

	pages := make([]models.Page, 0, len(fields))
	for _, blob := range fields {
		var page models.Page
		if err := msgpack.Unmarshal([]byte(blob), &page); err != nil {
			continue
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// CreateBookmarkList creates a bookmark list under a collection and stores
// its bookmarks. Bookmark page references are stored as given; the caller
// re-keys them through the page-id map first.
func (s *Store) CreateBookmarkList(ctx context.Context, collID string, data models.ListData) (*models.BookmarkList, error) {
	list := &models.BookmarkList{
		ID:     uuid.New().String(),
		Title:  data.Title,
		Desc:   data.Desc,
		Public: data.Public,
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, collListsKey(collID), list.ID)
	pipe.HSet(ctx, listInfoKey(list.ID),
		"title", list.Title,
		"desc", list.Desc,
		"public", boolProp(list.Public),
	)
	for _, bookmark := range data.Bookmarks {
		if bookmark.ID == "" {
			bookmark.ID = uuid.New().String()
		}
		blob, err := msgpack.Marshal(&bookmark)
		if err != nil {
			return nil, fmt.Errorf("encoding bookmark: %w", err)
		}
		pipe.HSet(ctx, listBookmarksKey(list.ID), bookmark.ID, blob)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("creating bookmark list: %w", err)
	}
	return list, nil
}

// ListBookmarkLists returns the collection's lists in insertion order.
func (s *Store) ListBookmarkLists(ctx context.Context, collID string) ([]*models.BookmarkList, error) {
	ids, err := s.rdb.LRange(ctx, collListsKey(collID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing bookmark lists: %w", err)
	}

	lists := make([]*models.BookmarkList, 0, len(ids))
	for _, id := range ids {
		props, err := s.rdb.HGetAll(ctx, listInfoKey(id)).Result()
		if err != nil || len(props) == 0 {
			continue
		}
		lists = append(lists, &models.BookmarkList{
			ID:     id,
			Title:  props["title"],
			Desc:   props["desc"],
			Public: props["public"] == "1",
		})
	}
	return lists, nil
}

// ListBookmarks returns all bookmarks in a list.
func (s *Store) ListBookmarks(ctx context.Context, listID string) ([]models.Bookmark, error) {
	fields, err := s.rdb.HGetAll(ctx, listBookmarksKey(listID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing bookmarks: %w", err)
	}

	bookmarks := make([]models.Bookmark, 0, len(fields))
	for _, blob := range fields {
		var bookmark models.Bookmark
		if err := msgpack.Unmarshal([]byte(blob), &bookmark); err != nil {
			continue
		}
		bookmarks = append(bookmarks, bookmark)
	}
	return bookmarks, nil
}
