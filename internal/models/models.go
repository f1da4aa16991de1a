package models

import "time"

// User represents a forum user mirrored into the feed
type User struct {
	ID        int       `json:"id"` // forum-assigned id
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	Banned    bool      `json:"banned"`
	CreatedAt time.Time `json:"created_at"`

	// ranking counters, derived by the store
	MessageCount int `json:"message_count"`
	CommentCount int `json:"comment_count"`
	LikeCount    int `json:"like_count"`
}

// UserSummary is the lightweight author/ignore-list view of a user
type UserSummary struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

// ContentKind tags the three votable content variants
type ContentKind int

const (
	KindMessage ContentKind = iota + 1
	KindComment
	KindSubcomment
)

func (k ContentKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindComment:
		return "comment"
	case KindSubcomment:
		return "subcomment"
	default:
		return "unknown"
	}
}

// ContentRef addresses a single content item
type ContentRef struct {
	Kind ContentKind
	ID   string
}

// Vote is a single user's expression on a content item
type Vote struct {
	UserID int `json:"user_id"`
	Value  int `json:"value"` // +1 like, -1 dislike
}

// ContentItem is a message, comment or subcomment.
// ParentID is the message id for comments and the comment id for subcomments.
type ContentItem struct {
	Kind      ContentKind `json:"-"`
	ID        string      `json:"id"`
	ParentID  string      `json:"parent_id,omitempty"`
	Author    UserSummary `json:"author"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	Votes     []Vote      `json:"-"`
}

func (c ContentItem) Ref() ContentRef {
	return ContentRef{Kind: c.Kind, ID: c.ID}
}

// Tally is the aggregate of an item's votes from one viewer's perspective
type Tally struct {
	Total     int  `json:"total"`
	UserVoted bool `json:"userLiked"`
}

// Report flags a message or a comment
type Report struct {
	ID        string    `json:"id"`
	UserID    int       `json:"user_id"`
	MessageID string    `json:"message_id,omitempty"`
	CommentID string    `json:"comment_id,omitempty"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is a text notice addressed to a user
type Notification struct {
	ID        string    `json:"id"`
	UserID    int       `json:"user_id"`
	Text      string    `json:"text"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedEntry is one nested node of the feed: a message with its comments,
// or a comment with its subcomments
type FeedEntry struct {
	ID        string      `json:"id"`
	Author    UserSummary `json:"author"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	Age       string      `json:"age"`
	Likes     Tally       `json:"likes"`
	Children  []FeedEntry `json:"children"`
}

// FeedPage is a window of the feed
type FeedPage struct {
	Items   []FeedEntry `json:"items"`
	HasMore bool        `json:"has_more"`
}
