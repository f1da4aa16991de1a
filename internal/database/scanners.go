package database

import (
	"database/sql"
	"log"

	"forum-feed/internal/models"
)

// ScanContent scans rows produced by selectContent into items of the given kind.
// Expected columns: id, parent_id, content, created_at, user_id, username, avatar_url
func ScanContent(rows *sql.Rows, kind models.ContentKind) ([]models.ContentItem, error) {
	defer rows.Close()
	var items []models.ContentItem
	for rows.Next() {
		item := models.ContentItem{Kind: kind}
		if err := rows.Scan(
			&item.ID,
			&item.ParentID,
			&item.Content,
			&item.CreatedAt,
			&item.Author.ID,
			&item.Author.Username,
			&item.Author.AvatarURL,
		); err != nil {
			log.Printf("ScanContent error: %v", err)
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ScanVotes scans rows with columns: user_id, value
func ScanVotes(rows *sql.Rows) ([]models.Vote, error) {
	defer rows.Close()
	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.UserID, &v.Value); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// ScanUserSummaries scans rows with columns: id, username, avatar_url
func ScanUserSummaries(rows *sql.Rows) ([]models.UserSummary, error) {
	defer rows.Close()
	users := []models.UserSummary{}
	for rows.Next() {
		var u models.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarURL); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ScanRankedUsers scans rows with columns: id, username, avatar_url, banned,
// created_at, message_count, comment_count, like_count
func ScanRankedUsers(rows *sql.Rows) ([]models.User, error) {
	defer rows.Close()
	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID, &u.Username, &u.AvatarURL, &u.Banned, &u.CreatedAt,
			&u.MessageCount, &u.CommentCount, &u.LikeCount,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ScanNotifications scans rows with columns: id, user_id, text, is_read, created_at
func ScanNotifications(rows *sql.Rows) ([]models.Notification, error) {
	defer rows.Close()
	out := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Text, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
