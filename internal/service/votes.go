package service

import (
	"context"
	"errors"
	"fmt"

	"forum-feed/internal/models"
	"forum-feed/internal/repos"
)

// ParseContentKind maps a client tag onto a content kind.
// "tweet" is the legacy client name for a message.
func ParseContentKind(tag string) (models.ContentKind, error) {
	switch tag {
	case "message", "tweet":
		return models.KindMessage, nil
	case "comment":
		return models.KindComment, nil
	case "subcomment":
		return models.KindSubcomment, nil
	default:
		return 0, fmt.Errorf("%q: %w", tag, ErrInvalidContentKind)
	}
}

func validKind(kind models.ContentKind) error {
	switch kind {
	case models.KindMessage, models.KindComment, models.KindSubcomment:
		return nil
	default:
		return fmt.Errorf("kind %d: %w", kind, ErrInvalidContentKind)
	}
}

// VoteLedger owns the per-item vote lists and enforces at most one vote
// per (item, voter). It is value-agnostic: callers pick +1 or -1.
type VoteLedger struct {
	users   repos.UserRepo
	content repos.ContentRepo
}

func NewVoteLedger(users repos.UserRepo, content repos.ContentRepo) *VoteLedger {
	return &VoteLedger{users: users, content: content}
}

func (l *VoteLedger) item(ctx context.Context, ref models.ContentRef) (*models.ContentItem, error) {
	if err := validKind(ref.Kind); err != nil {
		return nil, err
	}
	item, err := l.content.Get(ctx, ref)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, notFoundf("%s %s does not exist", ref.Kind, ref.ID)
	}
	return item, err
}

// AddVote appends a vote from voterID
func (l *VoteLedger) AddVote(ctx context.Context, ref models.ContentRef, voterID, value int) error {
	item, err := l.item(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := l.users.GetByID(ctx, voterID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return notFoundf("user %d does not exist", voterID)
		}
		return err
	}

	if hasVote(item.Votes, voterID) {
		return ErrAlreadyVoted
	}

	err = l.content.AddVote(ctx, ref, models.Vote{UserID: voterID, Value: value})
	switch {
	case errors.Is(err, repos.ErrDuplicate):
		// lost a race against a concurrent vote from the same user
		return ErrAlreadyVoted
	case errors.Is(err, repos.ErrNotFound):
		return notFoundf("%s %s does not exist", ref.Kind, ref.ID)
	}
	return err
}

// RemoveVote drops voterID's vote whatever its value
func (l *VoteLedger) RemoveVote(ctx context.Context, ref models.ContentRef, voterID int) error {
	item, err := l.item(ctx, ref)
	if err != nil {
		return err
	}
	if !hasVote(item.Votes, voterID) {
		return ErrNoExistingVote
	}

	removed, err := l.content.RemoveVote(ctx, ref, voterID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNoExistingVote
	}
	return nil
}

// Tally sums the item's votes and reports whether voterID has voted
func (l *VoteLedger) Tally(ctx context.Context, ref models.ContentRef, voterID int) (models.Tally, error) {
	item, err := l.item(ctx, ref)
	if err != nil {
		return models.Tally{}, err
	}
	return TallyVotes(item.Votes, &voterID), nil
}

// TallyVotes scans the full vote list; voter may be nil for anonymous viewers
func TallyVotes(votes []models.Vote, voter *int) models.Tally {
	var t models.Tally
	for _, v := range votes {
		t.Total += v.Value
		if voter != nil && v.UserID == *voter {
			t.UserVoted = true
		}
	}
	return t
}

func hasVote(votes []models.Vote, voterID int) bool {
	for _, v := range votes {
		if v.UserID == voterID {
			return true
		}
	}
	return false
}
