package service

import (
	"context"
	"errors"
	"time"

	"forum-feed/internal/models"
	"forum-feed/internal/repos"
	"forum-feed/internal/utils"
)

// FeedPaginator builds reverse-chronological, ignore-filtered feed pages
// with comments and subcomments nested under each message
type FeedPaginator struct {
	content  repos.ContentRepo
	ignores  *IgnoreGraph
	now      func() time.Time
	maxLimit int
}

func NewFeedPaginator(content repos.ContentRepo, ignores *IgnoreGraph, now func() time.Time, maxLimit int) *FeedPaginator {
	if now == nil {
		now = time.Now
	}
	return &FeedPaginator{content: content, ignores: ignores, now: now, maxLimit: maxLimit}
}

// Page returns up to limit messages after offset. Authors ignored by viewer
// are excluded by the store query itself so pages never under-fill.
// Ties on created_at are broken by storage order, newest insert first.
func (f *FeedPaginator) Page(ctx context.Context, viewer *int, offset, limit int) (models.FeedPage, error) {
	if offset < 0 {
		return models.FeedPage{}, invalidf("offset must not be negative")
	}
	if limit < 1 {
		return models.FeedPage{}, invalidf("limit must be positive")
	}
	if f.maxLimit > 0 && limit > f.maxLimit {
		return models.FeedPage{}, invalidf("limit must not exceed %d", f.maxLimit)
	}

	hidden, err := f.hiddenAuthors(ctx, viewer)
	if err != nil {
		return models.FeedPage{}, err
	}

	exclude := make([]int, 0, len(hidden))
	for id := range hidden {
		exclude = append(exclude, id)
	}

	// one extra row tells us whether another page exists
	items, err := f.content.Recent(ctx, exclude, offset, limit+1)
	if err != nil {
		return models.FeedPage{}, err
	}

	page := models.FeedPage{Items: []models.FeedEntry{}}
	if len(items) > limit {
		page.HasMore = true
		items = items[:limit]
	}

	now := f.now()
	for _, item := range items {
		entry, err := f.entry(ctx, item, viewer, hidden, now)
		if err != nil {
			return models.FeedPage{}, err
		}
		page.Items = append(page.Items, entry)
	}
	return page, nil
}

// Thread returns the nested comments of a single message
func (f *FeedPaginator) Thread(ctx context.Context, messageID string, viewer *int) ([]models.FeedEntry, error) {
	ref := models.ContentRef{Kind: models.KindMessage, ID: messageID}
	if _, err := f.content.Get(ctx, ref); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, notFoundf("message %s does not exist", messageID)
		}
		return nil, err
	}

	hidden, err := f.hiddenAuthors(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return f.children(ctx, ref, viewer, hidden, f.now())
}

// Entries renders already loaded items, e.g. a user's own posts
func (f *FeedPaginator) Entries(ctx context.Context, items []models.ContentItem, viewer *int) ([]models.FeedEntry, error) {
	hidden, err := f.hiddenAuthors(ctx, viewer)
	if err != nil {
		return nil, err
	}

	now := f.now()
	out := make([]models.FeedEntry, 0, len(items))
	for _, item := range items {
		entry, err := f.entry(ctx, item, viewer, hidden, now)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (f *FeedPaginator) hiddenAuthors(ctx context.Context, viewer *int) (map[int]bool, error) {
	hidden := map[int]bool{}
	if viewer == nil {
		return hidden, nil
	}
	ignored, err := f.ignores.ListIgnored(ctx, *viewer)
	if err != nil {
		return nil, err
	}
	for _, u := range ignored {
		hidden[u.ID] = true
	}
	return hidden, nil
}

func (f *FeedPaginator) entry(ctx context.Context, item models.ContentItem, viewer *int, hidden map[int]bool, now time.Time) (models.FeedEntry, error) {
	entry := models.FeedEntry{
		ID:        item.ID,
		Author:    item.Author,
		Content:   item.Content,
		CreatedAt: item.CreatedAt,
		Age:       utils.FormatTimeAgo(now, item.CreatedAt),
		Likes:     TallyVotes(item.Votes, viewer),
		Children:  []models.FeedEntry{},
	}

	if item.Kind == models.KindSubcomment {
		return entry, nil
	}

	children, err := f.children(ctx, item.Ref(), viewer, hidden, now)
	if err != nil {
		return models.FeedEntry{}, err
	}
	entry.Children = children
	return entry, nil
}

func (f *FeedPaginator) children(ctx context.Context, parent models.ContentRef, viewer *int, hidden map[int]bool, now time.Time) ([]models.FeedEntry, error) {
	items, err := f.content.Children(ctx, parent)
	if err != nil {
		return nil, err
	}

	out := make([]models.FeedEntry, 0, len(items))
	for _, item := range items {
		if hidden[item.Author.ID] {
			continue
		}
		entry, err := f.entry(ctx, item, viewer, hidden, now)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
