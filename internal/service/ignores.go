package service

import (
	"context"
	"errors"

	"forum-feed/internal/models"
	"forum-feed/internal/repos"
)

// IgnoreGraph owns each user's ignore set
type IgnoreGraph struct {
	users   repos.UserRepo
	ignores repos.IgnoreRepo
}

func NewIgnoreGraph(users repos.UserRepo, ignores repos.IgnoreRepo) *IgnoreGraph {
	return &IgnoreGraph{users: users, ignores: ignores}
}

func (g *IgnoreGraph) requireUsers(ctx context.Context, ids ...int) error {
	for _, id := range ids {
		if _, err := g.users.GetByID(ctx, id); err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return notFoundf("user %d does not exist", id)
			}
			return err
		}
	}
	return nil
}

// Ignore adds targetID to userID's ignore set. It reports false when the
// target was already ignored, in which case nothing is written.
func (g *IgnoreGraph) Ignore(ctx context.Context, userID, targetID int) (bool, error) {
	if err := g.requireUsers(ctx, userID, targetID); err != nil {
		return false, err
	}
	if userID == targetID {
		return false, invalidf("user %d cannot ignore themselves", userID)
	}

	ignored, err := g.isIgnored(ctx, userID, targetID)
	if err != nil || ignored {
		return false, err
	}
	if err := g.ignores.AddIgnore(ctx, userID, targetID); err != nil {
		return false, err
	}
	return true, nil
}

// Unignore removes targetID from userID's ignore set. It reports false when
// the target was not ignored.
func (g *IgnoreGraph) Unignore(ctx context.Context, userID, targetID int) (bool, error) {
	if err := g.requireUsers(ctx, userID, targetID); err != nil {
		return false, err
	}

	ignored, err := g.isIgnored(ctx, userID, targetID)
	if err != nil || !ignored {
		return false, err
	}
	if err := g.ignores.RemoveIgnore(ctx, userID, targetID); err != nil {
		return false, err
	}
	return true, nil
}

// ListIgnored returns userID's ignore set in insertion order
func (g *IgnoreGraph) ListIgnored(ctx context.Context, userID int) ([]models.UserSummary, error) {
	if err := g.requireUsers(ctx, userID); err != nil {
		return nil, err
	}
	return g.ignores.ListIgnored(ctx, userID)
}

func (g *IgnoreGraph) isIgnored(ctx context.Context, userID, targetID int) (bool, error) {
	list, err := g.ignores.ListIgnored(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, u := range list {
		if u.ID == targetID {
			return true, nil
		}
	}
	return false, nil
}
