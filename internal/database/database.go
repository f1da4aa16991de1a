package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"forum-feed/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

var (
	// ErrNotFound is returned when a referenced row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert
	ErrDuplicate = errors.New("duplicate record")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// InitDB opens the SQLite database at path, creating its directory if needed
func InitDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	// Enable foreign key constraints via connection string
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to :memory: is a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		log.Printf("Using database file: %s", path)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func newMigrator(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectSQLite3, db, fsys)
}

// RunMigrations applies all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	provider, err := newMigrator(db)
	if err != nil {
		return fmt.Errorf("migration setup failed: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	for _, r := range results {
		log.Printf("Applied migration %d (%s) in %v", r.Source.Version, filepath.Base(r.Source.Path), r.Duration)
	}
	return nil
}

// MigrationVersion reports the current schema version
func MigrationVersion(ctx context.Context, db *sql.DB) (int64, error) {
	provider, err := newMigrator(db)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

//
// ===================== USERS =====================
//

// GetUserByID retrieves a user by forum id
func GetUserByID(ctx context.Context, db *sql.DB, userID int) (*models.User, error) {
	query := "SELECT id, username, avatar_url, banned, created_at FROM users WHERE id = ?"

	var user models.User
	err := db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.AvatarURL,
		&user.Banned,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return &user, nil
}

// UpsertUser creates the user or syncs its profile; created reports which one happened
func UpsertUser(ctx context.Context, db *sql.DB, user models.User) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO users (id, username, avatar_url, banned, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (id) DO NOTHING`,
		user.ID, user.Username, user.AvatarURL, user.CreatedAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	_, err = db.ExecContext(ctx, `
		UPDATE users SET username = ?, avatar_url = ?
		WHERE id = ? AND (username <> ? OR avatar_url <> ?)`,
		user.Username, user.AvatarURL, user.ID, user.Username, user.AvatarURL,
	)
	return false, err
}

// SetUserBanned updates the banned flag
func SetUserBanned(ctx context.Context, db *sql.DB, userID int, banned bool) error {
	res, err := db.ExecContext(ctx, "UPDATE users SET banned = ? WHERE id = ?", banned, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTopUsers ranks users by messages, then comments, then likes received
func ListTopUsers(ctx context.Context, db *sql.DB, limit int) ([]models.User, error) {
	query := `
		SELECT u.id, u.username, u.avatar_url, u.banned, u.created_at,
			(SELECT COUNT(*) FROM messages m WHERE m.user_id = u.id) AS message_count,
			(SELECT COUNT(*) FROM comments c WHERE c.user_id = u.id)
				+ (SELECT COUNT(*) FROM subcomments s WHERE s.user_id = u.id) AS comment_count,
			(SELECT COALESCE(SUM(v.value), 0) FROM message_votes v JOIN messages m ON m.id = v.item_id WHERE m.user_id = u.id)
				+ (SELECT COALESCE(SUM(v.value), 0) FROM comment_votes v JOIN comments c ON c.id = v.item_id WHERE c.user_id = u.id)
				+ (SELECT COALESCE(SUM(v.value), 0) FROM subcomment_votes v JOIN subcomments s ON s.id = v.item_id WHERE s.user_id = u.id) AS like_count
		FROM users u
		ORDER BY message_count DESC, comment_count DESC, like_count DESC, u.id ASC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return ScanRankedUsers(rows)
}

//
// ===================== CONTENT =====================
//

type kindTables struct {
	items     string
	votes     string
	parentCol string
}

func tablesFor(kind models.ContentKind) (kindTables, error) {
	switch kind {
	case models.KindMessage:
		return kindTables{items: "messages", votes: "message_votes"}, nil
	case models.KindComment:
		return kindTables{items: "comments", votes: "comment_votes", parentCol: "message_id"}, nil
	case models.KindSubcomment:
		return kindTables{items: "subcomments", votes: "subcomment_votes", parentCol: "comment_id"}, nil
	default:
		return kindTables{}, fmt.Errorf("unknown content kind %d", kind)
	}
}

// selectContent returns a query yielding columns:
// id, parent_id, content, created_at, user_id, username, avatar_url
func selectContent(t kindTables) string {
	parent := "''"
	if t.parentCol != "" {
		parent = "c." + t.parentCol
	}
	return fmt.Sprintf(`
		SELECT c.id, %s, c.content, c.created_at, u.id, u.username, u.avatar_url
		FROM %s c
		JOIN users u ON u.id = c.user_id`, parent, t.items)
}

// InsertContent stores a new message, comment or subcomment
func InsertContent(ctx context.Context, db *sql.DB, item models.ContentItem) error {
	t, err := tablesFor(item.Kind)
	if err != nil {
		return err
	}

	if t.parentCol == "" {
		_, err = db.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (id, user_id, content, created_at) VALUES (?, ?, ?, ?)", t.items),
			item.ID, item.Author.ID, item.Content, item.CreatedAt.UTC(),
		)
	} else {
		_, err = db.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (id, %s, user_id, content, created_at) VALUES (?, ?, ?, ?, ?)", t.items, t.parentCol),
			item.ID, item.ParentID, item.Author.ID, item.Content, item.CreatedAt.UTC(),
		)
	}
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetContent loads an item together with its vote list
func GetContent(ctx context.Context, db *sql.DB, ref models.ContentRef) (*models.ContentItem, error) {
	t, err := tablesFor(ref.Kind)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectContent(t)+" WHERE c.id = ?", ref.ID)
	if err != nil {
		return nil, err
	}
	items, err := ScanContent(rows, ref.Kind)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}

	item := items[0]
	if item.Votes, err = ListVotes(ctx, db, ref); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateContent replaces an item's body
func UpdateContent(ctx context.Context, db *sql.DB, ref models.ContentRef, content string) error {
	t, err := tablesFor(ref.Kind)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET content = ? WHERE id = ?", t.items), content, ref.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteContent removes an item; children, votes and reports cascade
func DeleteContent(ctx context.Context, db *sql.DB, ref models.ContentRef) error {
	t, err := tablesFor(ref.Kind)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.items), ref.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentMessages returns messages newest first, skipping the excluded
// authors before the offset/limit window is applied
func ListRecentMessages(ctx context.Context, db *sql.DB, excludeAuthors []int, offset, limit int) ([]models.ContentItem, error) {
	t, _ := tablesFor(models.KindMessage)
	query := selectContent(t)
	args := make([]interface{}, 0, len(excludeAuthors)+2)

	if len(excludeAuthors) > 0 {
		query += " WHERE c.user_id NOT IN (" + placeholders(len(excludeAuthors)) + ")"
		for _, id := range excludeAuthors {
			args = append(args, id)
		}
	}
	query += " ORDER BY c.created_at DESC, c.seq DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return queryContentWithVotes(ctx, db, models.KindMessage, query, args...)
}

// ListMessagesByUser returns a user's latest messages
func ListMessagesByUser(ctx context.Context, db *sql.DB, userID, limit int) ([]models.ContentItem, error) {
	t, _ := tablesFor(models.KindMessage)
	query := selectContent(t) + " WHERE c.user_id = ? ORDER BY c.created_at DESC, c.seq DESC LIMIT ?"
	return queryContentWithVotes(ctx, db, models.KindMessage, query, userID, limit)
}

// ListChildren returns the comments of a message or the subcomments of a
// comment, oldest first
func ListChildren(ctx context.Context, db *sql.DB, parent models.ContentRef) ([]models.ContentItem, error) {
	var kind models.ContentKind
	switch parent.Kind {
	case models.KindMessage:
		kind = models.KindComment
	case models.KindComment:
		kind = models.KindSubcomment
	default:
		return nil, nil
	}

	t, _ := tablesFor(kind)
	query := selectContent(t) + fmt.Sprintf(" WHERE c.%s = ? ORDER BY c.created_at ASC, c.seq ASC", t.parentCol)
	return queryContentWithVotes(ctx, db, kind, query, parent.ID)
}

func queryContentWithVotes(ctx context.Context, db *sql.DB, kind models.ContentKind, query string, args ...interface{}) ([]models.ContentItem, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	items, err := ScanContent(rows, kind)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if items[i].Votes, err = ListVotes(ctx, db, items[i].Ref()); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func placeholders(n int) string {
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

//
// ===================== VOTES =====================
//

// ListVotes returns an item's votes in insertion order
func ListVotes(ctx context.Context, db *sql.DB, ref models.ContentRef) ([]models.Vote, error) {
	t, err := tablesFor(ref.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT user_id, value FROM %s WHERE item_id = ? ORDER BY seq ASC", t.votes), ref.ID)
	if err != nil {
		return nil, err
	}
	return ScanVotes(rows)
}

// InsertVote appends a vote; a second vote by the same user yields ErrDuplicate
func InsertVote(ctx context.Context, db *sql.DB, ref models.ContentRef, vote models.Vote) error {
	t, err := tablesFor(ref.Kind)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (item_id, user_id, value) VALUES (?, ?, ?)", t.votes),
		ref.ID, vote.UserID, vote.Value,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// DeleteVote removes the user's vote; removed is false when there was none
func DeleteVote(ctx context.Context, db *sql.DB, ref models.ContentRef, userID int) (bool, error) {
	t, err := tablesFor(ref.Kind)
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE item_id = ? AND user_id = ?", t.votes), ref.ID, userID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

//
// ===================== IGNORES =====================
//

// InsertIgnore adds target to the user's ignore list if absent
func InsertIgnore(ctx context.Context, db *sql.DB, userID, targetID int) error {
	_, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO ignores (user_id, ignored_id) VALUES (?, ?)", userID, targetID)
	return err
}

// DeleteIgnore removes target from the user's ignore list
func DeleteIgnore(ctx context.Context, db *sql.DB, userID, targetID int) error {
	_, err := db.ExecContext(ctx,
		"DELETE FROM ignores WHERE user_id = ? AND ignored_id = ?", userID, targetID)
	return err
}

// ListIgnoredUsers returns the ignore list in insertion order
func ListIgnoredUsers(ctx context.Context, db *sql.DB, userID int) ([]models.UserSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT u.id, u.username, u.avatar_url
		FROM ignores i
		JOIN users u ON u.id = i.ignored_id
		WHERE i.user_id = ?
		ORDER BY i.seq ASC`, userID)
	if err != nil {
		return nil, err
	}
	return ScanUserSummaries(rows)
}

//
// ===================== REPORTS & NOTIFICATIONS =====================
//

// InsertReport stores a report against a message or a comment
func InsertReport(ctx context.Context, db *sql.DB, report models.Report) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO reports (id, user_id, message_id, comment_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		report.ID, report.UserID, nullString(report.MessageID), nullString(report.CommentID),
		report.Reason, report.CreatedAt.UTC(),
	)
	return err
}

// InsertNotification stores an unread notification
func InsertNotification(ctx context.Context, db *sql.DB, n models.Notification) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, text, is_read, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Text, n.Read, n.CreatedAt.UTC(),
	)
	return err
}

// ListNotifications returns a user's notifications, newest first
func ListNotifications(ctx context.Context, db *sql.DB, userID int) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, text, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return ScanNotifications(rows)
}

// DeleteNotificationsBefore removes notifications created before cutoff
func DeleteNotificationsBefore(ctx context.Context, db *sql.DB, cutoff time.Time) (int, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM notifications WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
