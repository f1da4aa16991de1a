package repos

import (
	"context"
	"time"

	"forum-feed/internal/database"
	"forum-feed/internal/models"
)

var (
	ErrNotFound  = database.ErrNotFound
	ErrDuplicate = database.ErrDuplicate
)

// UserRepo defines methods to access users
type UserRepo interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
	Upsert(ctx context.Context, user models.User) (created bool, err error)
	SetBanned(ctx context.Context, id int, banned bool) error
	TopUsers(ctx context.Context, limit int) ([]models.User, error)
}

// ContentRepo defines methods to access messages, comments and subcomments
// along with their embedded vote lists
type ContentRepo interface {
	Get(ctx context.Context, ref models.ContentRef) (*models.ContentItem, error)
	Create(ctx context.Context, item models.ContentItem) error
	UpdateContent(ctx context.Context, ref models.ContentRef, content string) error
	Delete(ctx context.Context, ref models.ContentRef) error
	Recent(ctx context.Context, excludeAuthors []int, offset, limit int) ([]models.ContentItem, error)
	ByAuthor(ctx context.Context, userID, limit int) ([]models.ContentItem, error)
	Children(ctx context.Context, parent models.ContentRef) ([]models.ContentItem, error)

	AddVote(ctx context.Context, ref models.ContentRef, vote models.Vote) error
	RemoveVote(ctx context.Context, ref models.ContentRef, userID int) (bool, error)
}

// IgnoreRepo defines methods to access ignore lists
type IgnoreRepo interface {
	AddIgnore(ctx context.Context, userID, targetID int) error
	RemoveIgnore(ctx context.Context, userID, targetID int) error
	ListIgnored(ctx context.Context, userID int) ([]models.UserSummary, error)
}

// ReportRepo stores moderation reports
type ReportRepo interface {
	CreateReport(ctx context.Context, report models.Report) error
}

// NotificationRepo stores user notifications
type NotificationRepo interface {
	CreateNotification(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, userID int) ([]models.Notification, error)
	PruneNotifications(ctx context.Context, before time.Time) (int, error)
}

// Repos groups repository interfaces for convenience
type Repos struct {
	Users         UserRepo
	Content       ContentRepo
	Ignores       IgnoreRepo
	Reports       ReportRepo
	Notifications NotificationRepo
}
