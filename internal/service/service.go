package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"forum-feed/internal/models"
	"forum-feed/internal/repos"
	"forum-feed/internal/utils"

	"github.com/google/uuid"
)

// Broadcaster mirrors accepted mutations to every connected client
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// Options tunes the service; zero values fall back to defaults
type Options struct {
	AdminIDs         []int
	MaxContentLength int
	DefaultPageSize  int
	MaxPageSize      int
	TopUsersLimit    int
	UserPostsLimit   int
	Timeout          time.Duration

	Now   func() time.Time
	NewID func() string
}

func (o *Options) setDefaults() {
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = 500
	}
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = 10
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 100
	}
	if o.TopUsersLimit <= 0 {
		o.TopUsersLimit = 10
	}
	if o.UserPostsLimit <= 0 {
		o.UserPostsLimit = 10
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

// Service orchestrates every feed interaction. REST and websocket adapters
// both call into it, so validation, persistence and broadcasting happen in
// one place regardless of the entry path.
type Service struct {
	repos  *repos.Repos
	events Broadcaster
	admins map[int]struct{}
	opts   Options

	Votes   *VoteLedger
	Ignores *IgnoreGraph
	Feed    *FeedPaginator
}

func New(r *repos.Repos, events Broadcaster, opts Options) *Service {
	opts.setDefaults()

	admins := make(map[int]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}

	ignores := NewIgnoreGraph(r.Users, r.Ignores)
	return &Service{
		repos:   r,
		events:  events,
		admins:  admins,
		opts:    opts,
		Votes:   NewVoteLedger(r.Users, r.Content),
		Ignores: ignores,
		Feed:    NewFeedPaginator(r.Content, ignores, opts.Now, opts.MaxPageSize),
	}
}

func (s *Service) IsAdmin(userID int) bool {
	_, ok := s.admins[userID]
	return ok
}

// broadcast must only be called once the mutation has been persisted
func (s *Service) broadcast(event string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(event, payload)
}

func (s *Service) user(ctx context.Context, id int) (*models.User, error) {
	u, err := s.repos.Users.GetByID(ctx, id)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, notFoundf("user %d does not exist", id)
	}
	return u, err
}

func (s *Service) content(ctx context.Context, ref models.ContentRef) (*models.ContentItem, error) {
	item, err := s.repos.Content.Get(ctx, ref)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, notFoundf("%s %s does not exist", ref.Kind, ref.ID)
	}
	return item, err
}

//
// ===================== USERS =====================
//

func (s *Service) syncProfile(ctx context.Context, userID int, username, avatarURL string) (bool, error) {
	if !utils.IsValidURL(avatarURL) {
		return false, invalidf("avatar_url must be an http(s) URL")
	}
	return s.repos.Users.Upsert(ctx, models.User{
		ID:        userID,
		Username:  username,
		AvatarURL: avatarURL,
		CreatedAt: s.opts.Now(),
	})
}

// UpsertUser creates the forum user on first contact and syncs the profile
// afterwards; created reports which one happened
func (s *Service) UpsertUser(ctx context.Context, userID int, username, avatarURL string) (bool, error) {
	created, err := s.syncProfile(ctx, userID, username, avatarURL)
	if err != nil {
		return false, err
	}

	s.broadcast("check user", map[string]interface{}{
		"user_id":    userID,
		"username":   username,
		"avatar_url": avatarURL,
		"created":    created,
	})
	return created, nil
}

// BanUser sets the banned flag; changed is false if the user was already banned
func (s *Service) BanUser(ctx context.Context, userID int) (bool, error) {
	return s.setBanned(ctx, userID, true, "ban user")
}

// UnbanUser clears the banned flag; changed is false if the user was not banned
func (s *Service) UnbanUser(ctx context.Context, userID int) (bool, error) {
	return s.setBanned(ctx, userID, false, "unban user")
}

func (s *Service) setBanned(ctx context.Context, userID int, banned bool, event string) (bool, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return false, err
	}

	changed := u.Banned != banned
	if changed {
		if err := s.repos.Users.SetBanned(ctx, userID, banned); err != nil {
			return false, err
		}
	}

	s.broadcast(event, map[string]interface{}{"user_id": userID, "banned": banned})
	return changed, nil
}

// TopUsers ranks users by message count, then comment count, then likes received
func (s *Service) TopUsers(ctx context.Context) ([]models.User, error) {
	return s.repos.Users.TopUsers(ctx, s.opts.TopUsersLimit)
}

//
// ===================== CONTENT =====================
//

// NewMessage carries the author profile alongside the body so the first
// message from a forum user also registers them
type NewMessage struct {
	AuthorID  int
	Username  string
	AvatarURL string
	Content   string
}

// CreateMessage publishes a message for a non-banned author
func (s *Service) CreateMessage(ctx context.Context, in NewMessage) (*models.ContentItem, error) {
	if in.Username != "" {
		if _, err := s.syncProfile(ctx, in.AuthorID, in.Username, in.AvatarURL); err != nil {
			return nil, err
		}
	}

	author, err := s.user(ctx, in.AuthorID)
	if err != nil {
		return nil, err
	}
	if author.Banned {
		return nil, forbiddenf("user %s is banned and cannot create messages", author.Username)
	}
	if err := checkContent(in.Content, s.opts.MaxContentLength); err != nil {
		return nil, err
	}

	return s.create(ctx, models.KindMessage, author, "", in.Content)
}

// CreateComment adds a comment under a message
func (s *Service) CreateComment(ctx context.Context, authorID int, messageID, content string) (*models.ContentItem, error) {
	return s.createChild(ctx, models.ContentRef{Kind: models.KindMessage, ID: messageID}, authorID, content)
}

// CreateSubcomment adds a reply under a comment
func (s *Service) CreateSubcomment(ctx context.Context, authorID int, commentID, content string) (*models.ContentItem, error) {
	return s.createChild(ctx, models.ContentRef{Kind: models.KindComment, ID: commentID}, authorID, content)
}

func (s *Service) createChild(ctx context.Context, parent models.ContentRef, authorID int, content string) (*models.ContentItem, error) {
	author, err := s.user(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.content(ctx, parent); err != nil {
		return nil, err
	}
	if err := checkContent(content, s.opts.MaxContentLength); err != nil {
		return nil, err
	}

	kind := models.KindComment
	if parent.Kind == models.KindComment {
		kind = models.KindSubcomment
	}
	return s.create(ctx, kind, author, parent.ID, content)
}

func (s *Service) create(ctx context.Context, kind models.ContentKind, author *models.User, parentID, content string) (*models.ContentItem, error) {
	item := models.ContentItem{
		Kind:      kind,
		ID:        s.opts.NewID(),
		ParentID:  parentID,
		Author:    author.Summary(),
		Content:   content,
		CreatedAt: s.opts.Now(),
	}
	if err := s.repos.Content.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}

	log.Printf("%s %s created by user %d", kind, item.ID, author.ID)
	s.broadcast("create "+kind.String(), contentPayload(item))
	return &item, nil
}

// EditMessage replaces a message body; only the author may edit
func (s *Service) EditMessage(ctx context.Context, messageID string, requesterID int, content string) error {
	return s.edit(ctx, models.ContentRef{Kind: models.KindMessage, ID: messageID}, requesterID, content)
}

// EditComment replaces a comment body; only the author may edit
func (s *Service) EditComment(ctx context.Context, commentID string, requesterID int, content string) error {
	return s.edit(ctx, models.ContentRef{Kind: models.KindComment, ID: commentID}, requesterID, content)
}

// EditSubcomment replaces a subcomment body; only the author may edit
func (s *Service) EditSubcomment(ctx context.Context, subcommentID string, requesterID int, content string) error {
	return s.edit(ctx, models.ContentRef{Kind: models.KindSubcomment, ID: subcommentID}, requesterID, content)
}

// admins can delete anything but edit only their own content
func (s *Service) edit(ctx context.Context, ref models.ContentRef, requesterID int, content string) error {
	item, err := s.content(ctx, ref)
	if err != nil {
		return err
	}
	if item.Author.ID != requesterID {
		return forbiddenf("user %d does not have permission to edit this %s", requesterID, ref.Kind)
	}
	if err := checkContent(content, s.opts.MaxContentLength); err != nil {
		return err
	}

	if err := s.repos.Content.UpdateContent(ctx, ref, content); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return notFoundf("%s %s does not exist", ref.Kind, ref.ID)
		}
		return err
	}

	item.Content = content
	payload := contentPayload(*item)
	payload["editor_id"] = requesterID
	s.broadcast("update "+ref.Kind.String(), payload)
	return nil
}

// DeleteMessage removes a message with its comments; author or admin only
func (s *Service) DeleteMessage(ctx context.Context, messageID string, requesterID int) error {
	return s.delete(ctx, models.ContentRef{Kind: models.KindMessage, ID: messageID}, requesterID)
}

// DeleteComment removes a comment with its subcomments; author or admin only
func (s *Service) DeleteComment(ctx context.Context, commentID string, requesterID int) error {
	return s.delete(ctx, models.ContentRef{Kind: models.KindComment, ID: commentID}, requesterID)
}

// DeleteSubcomment removes a subcomment; author or admin only
func (s *Service) DeleteSubcomment(ctx context.Context, subcommentID string, requesterID int) error {
	return s.delete(ctx, models.ContentRef{Kind: models.KindSubcomment, ID: subcommentID}, requesterID)
}

func (s *Service) delete(ctx context.Context, ref models.ContentRef, requesterID int) error {
	item, err := s.content(ctx, ref)
	if err != nil {
		return err
	}
	if item.Author.ID != requesterID && !s.IsAdmin(requesterID) {
		return forbiddenf("user %d does not have permission to delete this %s", requesterID, ref.Kind)
	}

	if err := s.repos.Content.Delete(ctx, ref); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return notFoundf("%s %s does not exist", ref.Kind, ref.ID)
		}
		return err
	}

	log.Printf("%s %s deleted by user %d", ref.Kind, ref.ID, requesterID)
	payload := map[string]interface{}{
		idKey(ref.Kind): ref.ID,
		"user_id":       requesterID,
	}
	if item.ParentID != "" {
		payload[parentKey(ref.Kind)] = item.ParentID
	}
	s.broadcast("delete "+ref.Kind.String(), payload)
	return nil
}

// UserPosts returns a user's latest messages with their threads
func (s *Service) UserPosts(ctx context.Context, userID int, viewer *int) ([]models.FeedEntry, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	items, err := s.repos.Content.ByAuthor(ctx, userID, s.opts.UserPostsLimit)
	if err != nil {
		return nil, err
	}
	return s.Feed.Entries(ctx, items, viewer)
}

// MessageComments returns the nested comments of a message
func (s *Service) MessageComments(ctx context.Context, messageID string, viewer *int) ([]models.FeedEntry, error) {
	return s.Feed.Thread(ctx, messageID, viewer)
}

// RecentMessages returns a feed page; viewer may be nil
func (s *Service) RecentMessages(ctx context.Context, viewer *int, offset, limit int) (models.FeedPage, error) {
	return s.Feed.Page(ctx, viewer, offset, limit)
}

//
// ===================== LIKES =====================
//

// Like records a +1 from userID
func (s *Service) Like(ctx context.Context, userID int, ref models.ContentRef) (models.Tally, error) {
	if err := s.Votes.AddVote(ctx, ref, userID, 1); err != nil {
		return models.Tally{}, err
	}
	return s.afterVote(ctx, "like message", userID, ref)
}

// Unlike removes userID's vote
func (s *Service) Unlike(ctx context.Context, userID int, ref models.ContentRef) (models.Tally, error) {
	if err := s.Votes.RemoveVote(ctx, ref, userID); err != nil {
		return models.Tally{}, err
	}
	return s.afterVote(ctx, "remove like message", userID, ref)
}

func (s *Service) afterVote(ctx context.Context, event string, userID int, ref models.ContentRef) (models.Tally, error) {
	tally, err := s.Votes.Tally(ctx, ref, userID)
	if err != nil {
		return models.Tally{}, err
	}
	s.broadcast(event, map[string]interface{}{
		"user_id":      userID,
		"message_id":   ref.ID,
		"message_type": ref.Kind.String(),
		"total":        tally.Total,
	})
	return tally, nil
}

// Likes returns the tally for ref from userID's perspective
func (s *Service) Likes(ctx context.Context, userID int, ref models.ContentRef) (models.Tally, error) {
	return s.Votes.Tally(ctx, ref, userID)
}

//
// ===================== IGNORES =====================
//

// IgnoreUser hides targetID's content from userID's feed
func (s *Service) IgnoreUser(ctx context.Context, userID, targetID int) (bool, error) {
	changed, err := s.Ignores.Ignore(ctx, userID, targetID)
	if err != nil {
		return false, err
	}
	s.broadcast("ignore user", map[string]interface{}{"user_id": userID, "ignored_user_id": targetID})
	return changed, nil
}

// UnignoreUser shows targetID's content to userID again
func (s *Service) UnignoreUser(ctx context.Context, userID, targetID int) (bool, error) {
	changed, err := s.Ignores.Unignore(ctx, userID, targetID)
	if err != nil {
		return false, err
	}
	s.broadcast("unignore user", map[string]interface{}{"user_id": userID, "ignored_user_id": targetID})
	return changed, nil
}

func (s *Service) IgnoredUsers(ctx context.Context, userID int) ([]models.UserSummary, error) {
	return s.Ignores.ListIgnored(ctx, userID)
}

//
// ===================== REPORTS & NOTIFICATIONS =====================
//

// ReportMessage files a report against a message
func (s *Service) ReportMessage(ctx context.Context, userID int, messageID, reason string) (*models.Report, error) {
	return s.report(ctx, userID, models.ContentRef{Kind: models.KindMessage, ID: messageID}, reason)
}

// ReportComment files a report against a comment
func (s *Service) ReportComment(ctx context.Context, userID int, commentID, reason string) (*models.Report, error) {
	return s.report(ctx, userID, models.ContentRef{Kind: models.KindComment, ID: commentID}, reason)
}

func (s *Service) report(ctx context.Context, userID int, ref models.ContentRef, reason string) (*models.Report, error) {
	if err := CheckLength(reason, s.opts.MaxContentLength); err != nil {
		return nil, err
	}
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.content(ctx, ref); err != nil {
		return nil, err
	}

	report := models.Report{
		ID:        s.opts.NewID(),
		UserID:    userID,
		Reason:    reason,
		CreatedAt: s.opts.Now(),
	}
	if ref.Kind == models.KindMessage {
		report.MessageID = ref.ID
	} else {
		report.CommentID = ref.ID
	}
	if err := s.repos.Reports.CreateReport(ctx, report); err != nil {
		return nil, err
	}

	log.Printf("%s %s reported by user %d: %q", ref.Kind, ref.ID, userID, utils.Truncate(reason, 40))
	s.broadcast("report "+ref.Kind.String(), map[string]interface{}{
		"report_id":     report.ID,
		"user_id":       userID,
		idKey(ref.Kind): ref.ID,
		"reason":        reason,
	})
	return &report, nil
}

// SendNotification stores a notification for userID
func (s *Service) SendNotification(ctx context.Context, userID int, text string) (*models.Notification, error) {
	if err := checkContent(text, s.opts.MaxContentLength); err != nil {
		return nil, err
	}
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}

	n := models.Notification{
		ID:        s.opts.NewID(),
		UserID:    userID,
		Text:      text,
		CreatedAt: s.opts.Now(),
	}
	if err := s.repos.Notifications.CreateNotification(ctx, n); err != nil {
		return nil, err
	}

	s.broadcast("send notification", map[string]interface{}{
		"notification_id": n.ID,
		"user_id":         userID,
		"text":            text,
	})
	return &n, nil
}

func (s *Service) Notifications(ctx context.Context, userID int) ([]models.Notification, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	return s.repos.Notifications.ListNotifications(ctx, userID)
}

// PruneNotifications deletes notifications older than retention
func (s *Service) PruneNotifications(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, invalidf("retention must be positive, got %v", retention)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	n, err := s.repos.Notifications.PruneNotifications(ctx, s.opts.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}
	return n, nil
}

//
// ===================== PAYLOADS =====================
//

func idKey(kind models.ContentKind) string {
	return kind.String() + "_id"
}

func parentKey(kind models.ContentKind) string {
	switch kind {
	case models.KindComment:
		return "message_id"
	case models.KindSubcomment:
		return "comment_id"
	default:
		return ""
	}
}

func contentPayload(item models.ContentItem) map[string]interface{} {
	payload := map[string]interface{}{
		idKey(item.Kind): item.ID,
		"user_id":        item.Author.ID,
		"username":       item.Author.Username,
		"avatar_url":     item.Author.AvatarURL,
		"content":        item.Content,
		"created_at":     item.CreatedAt.Format(time.RFC3339),
	}
	if item.ParentID != "" {
		payload[parentKey(item.Kind)] = item.ParentID
	}
	return payload
}
