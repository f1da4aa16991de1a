package repos

import (
	"context"
	"database/sql"
	"time"

	"forum-feed/internal/database"
	"forum-feed/internal/models"
)

type SQLiteAdapter struct {
	DB *sql.DB
}

func NewSQLiteAdapter(db *sql.DB) *SQLiteAdapter {
	return &SQLiteAdapter{DB: db}
}

// NewSQLiteRepos wires every repository to a single adapter
func NewSQLiteRepos(db *sql.DB) *Repos {
	adapter := NewSQLiteAdapter(db)
	return &Repos{
		Users:         adapter,
		Content:       adapter,
		Ignores:       adapter,
		Reports:       adapter,
		Notifications: adapter,
	}
}

// UserRepo
func (s *SQLiteAdapter) GetByID(ctx context.Context, id int) (*models.User, error) {
	return database.GetUserByID(ctx, s.DB, id)
}

func (s *SQLiteAdapter) Upsert(ctx context.Context, user models.User) (bool, error) {
	return database.UpsertUser(ctx, s.DB, user)
}

func (s *SQLiteAdapter) SetBanned(ctx context.Context, id int, banned bool) error {
	return database.SetUserBanned(ctx, s.DB, id, banned)
}

func (s *SQLiteAdapter) TopUsers(ctx context.Context, limit int) ([]models.User, error) {
	return database.ListTopUsers(ctx, s.DB, limit)
}

// ContentRepo
func (s *SQLiteAdapter) Get(ctx context.Context, ref models.ContentRef) (*models.ContentItem, error) {
	return database.GetContent(ctx, s.DB, ref)
}

func (s *SQLiteAdapter) Create(ctx context.Context, item models.ContentItem) error {
	return database.InsertContent(ctx, s.DB, item)
}

func (s *SQLiteAdapter) UpdateContent(ctx context.Context, ref models.ContentRef, content string) error {
	return database.UpdateContent(ctx, s.DB, ref, content)
}

func (s *SQLiteAdapter) Delete(ctx context.Context, ref models.ContentRef) error {
	return database.DeleteContent(ctx, s.DB, ref)
}

func (s *SQLiteAdapter) Recent(ctx context.Context, excludeAuthors []int, offset, limit int) ([]models.ContentItem, error) {
	return database.ListRecentMessages(ctx, s.DB, excludeAuthors, offset, limit)
}

func (s *SQLiteAdapter) ByAuthor(ctx context.Context, userID, limit int) ([]models.ContentItem, error) {
	return database.ListMessagesByUser(ctx, s.DB, userID, limit)
}

func (s *SQLiteAdapter) Children(ctx context.Context, parent models.ContentRef) ([]models.ContentItem, error) {
	return database.ListChildren(ctx, s.DB, parent)
}

func (s *SQLiteAdapter) AddVote(ctx context.Context, ref models.ContentRef, vote models.Vote) error {
	return database.InsertVote(ctx, s.DB, ref, vote)
}

func (s *SQLiteAdapter) RemoveVote(ctx context.Context, ref models.ContentRef, userID int) (bool, error) {
	return database.DeleteVote(ctx, s.DB, ref, userID)
}

// IgnoreRepo
func (s *SQLiteAdapter) AddIgnore(ctx context.Context, userID, targetID int) error {
	return database.InsertIgnore(ctx, s.DB, userID, targetID)
}

func (s *SQLiteAdapter) RemoveIgnore(ctx context.Context, userID, targetID int) error {
	return database.DeleteIgnore(ctx, s.DB, userID, targetID)
}

func (s *SQLiteAdapter) ListIgnored(ctx context.Context, userID int) ([]models.UserSummary, error) {
	return database.ListIgnoredUsers(ctx, s.DB, userID)
}

// ReportRepo
func (s *SQLiteAdapter) CreateReport(ctx context.Context, report models.Report) error {
	return database.InsertReport(ctx, s.DB, report)
}

// NotificationRepo
func (s *SQLiteAdapter) CreateNotification(ctx context.Context, n models.Notification) error {
	return database.InsertNotification(ctx, s.DB, n)
}

func (s *SQLiteAdapter) ListNotifications(ctx context.Context, userID int) ([]models.Notification, error) {
	return database.ListNotifications(ctx, s.DB, userID)
}

func (s *SQLiteAdapter) PruneNotifications(ctx context.Context, before time.Time) (int, error) {
	return database.DeleteNotificationsBefore(ctx, s.DB, before)
}
