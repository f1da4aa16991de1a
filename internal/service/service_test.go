package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"forum-feed/internal/database"
	"forum-feed/internal/models"
	"forum-feed/internal/repos"
)

type event struct {
	name    string
	payload interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Broadcast(name string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{name: name, payload: payload})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.name)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const adminID = 999

func setupService(t *testing.T) (*Service, *recorder) {
	t.Helper()

	db, err := database.InitDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	var seq int
	rec := &recorder{}
	svc := New(repos.NewSQLiteRepos(db), rec, Options{
		AdminIDs:    []int{adminID},
		MaxPageSize: 50,
		Now:         func() time.Time { return testNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	})
	return svc, rec
}

func addUser(t *testing.T, s *Service, id int) {
	t.Helper()
	if _, err := s.UpsertUser(context.Background(), id, fmt.Sprintf("user%d", id), ""); err != nil {
		t.Fatalf("upsert user %d: %v", id, err)
	}
}

func addMessage(t *testing.T, s *Service, authorID int, body string) string {
	t.Helper()
	item, err := s.CreateMessage(context.Background(), NewMessage{AuthorID: authorID, Content: body})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	return item.ID
}

func TestLikeRoundTrip(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	m := addMessage(t, s, 1, "hello")
	ref := models.ContentRef{Kind: models.KindMessage, ID: m}

	if _, err := s.Like(ctx, 1, ref); err != nil {
		t.Fatalf("like: %v", err)
	}
	tally, err := s.Likes(ctx, 1, ref)
	if err != nil {
		t.Fatalf("likes: %v", err)
	}
	if tally.Total != 1 || !tally.UserVoted {
		t.Fatalf("expected {1 true}, got %+v", tally)
	}

	if _, err := s.Like(ctx, 1, ref); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	if _, err := s.Unlike(ctx, 1, ref); err != nil {
		t.Fatalf("unlike: %v", err)
	}
	tally, _ = s.Likes(ctx, 1, ref)
	if tally.Total != 0 || tally.UserVoted {
		t.Fatalf("expected {0 false}, got %+v", tally)
	}

	if _, err := s.Unlike(ctx, 1, ref); !errors.Is(err, ErrNoExistingVote) {
		t.Fatalf("expected ErrNoExistingVote, got %v", err)
	}
}

func TestLikeThroughEventNames(t *testing.T) {
	s, rec := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	m := addMessage(t, s, 1, "hello")
	rec.reset()

	payload := Payload{"user_id": 1, "message_id": m, "message_type": "tweet"}
	res, err := s.Execute(ctx, "like message", payload)
	if err != nil {
		t.Fatalf("like message: %v", err)
	}
	if res.Data["total"] != 1 || res.Data["userLiked"] != true {
		t.Fatalf("unexpected like result: %+v", res.Data)
	}

	res, err = s.Execute(ctx, "get message likes", payload)
	if err != nil {
		t.Fatalf("get message likes: %v", err)
	}
	if res.Data["total"] != 1 || res.Data["userLiked"] != true {
		t.Fatalf("unexpected likes: %+v", res.Data)
	}

	if _, err := s.Execute(ctx, "like message", payload); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	bad := Payload{"user_id": 1, "message_id": m, "message_type": "post"}
	if _, err := s.Execute(ctx, "like message", bad); !errors.Is(err, ErrInvalidContentKind) {
		t.Fatalf("expected ErrInvalidContentKind, got %v", err)
	}

	if got := rec.names(); len(got) != 1 || got[0] != "like message" {
		t.Fatalf("expected a single like event, got %v", got)
	}
}

func TestLikeErrors(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	m := addMessage(t, s, 1, "hello")

	tests := []struct {
		name string
		user int
		ref  models.ContentRef
		want error
	}{
		{"missing message", 1, models.ContentRef{Kind: models.KindMessage, ID: "nope"}, ErrNotFound},
		{"missing comment", 1, models.ContentRef{Kind: models.KindComment, ID: m}, ErrNotFound},
		{"missing voter", 42, models.ContentRef{Kind: models.KindMessage, ID: m}, ErrNotFound},
		{"bad kind", 1, models.ContentRef{Kind: models.ContentKind(7), ID: m}, ErrInvalidContentKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Like(ctx, tt.user, tt.ref); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTallySumsValues(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	for _, id := range []int{1, 2, 3, 4} {
		addUser(t, s, id)
	}
	m := addMessage(t, s, 1, "vote on me")
	ref := models.ContentRef{Kind: models.KindMessage, ID: m}

	for voter, value := range map[int]int{2: 1, 3: 1, 4: -1} {
		if err := s.Votes.AddVote(ctx, ref, voter, value); err != nil {
			t.Fatalf("add vote %d: %v", voter, err)
		}
	}

	tally, err := s.Votes.Tally(ctx, ref, 4)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Total != 1 || !tally.UserVoted {
		t.Fatalf("expected {1 true}, got %+v", tally)
	}

	tally, _ = s.Votes.Tally(ctx, ref, 1)
	if tally.UserVoted {
		t.Fatalf("author did not vote")
	}

	if err := s.Votes.AddVote(ctx, ref, 4, 1); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("a dislike still counts as a vote, got %v", err)
	}
}

func TestLikeComments(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	addUser(t, s, 2)
	m := addMessage(t, s, 1, "hello")

	c, err := s.CreateComment(ctx, 2, m, "first")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	sc, err := s.CreateSubcomment(ctx, 1, c.ID, "reply")
	if err != nil {
		t.Fatalf("create subcomment: %v", err)
	}

	for _, ref := range []models.ContentRef{c.Ref(), sc.Ref()} {
		tally, err := s.Like(ctx, 1, ref)
		if err != nil {
			t.Fatalf("like %s: %v", ref.Kind, err)
		}
		if tally.Total != 1 || !tally.UserVoted {
			t.Fatalf("%s: expected {1 true}, got %+v", ref.Kind, tally)
		}
	}

	// votes are per item, the message itself is untouched
	tally, _ := s.Likes(ctx, 1, models.ContentRef{Kind: models.KindMessage, ID: m})
	if tally.Total != 0 {
		t.Fatalf("expected message tally 0, got %d", tally.Total)
	}
}

func TestEditAndDeletePermissions(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	addUser(t, s, 2)
	addUser(t, s, adminID)
	m := addMessage(t, s, 1, "original")

	if err := s.EditMessage(ctx, m, 2, "x"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-author edit, got %v", err)
	}
	if err := s.EditMessage(ctx, m, adminID, "x"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admins must not edit, got %v", err)
	}
	if err := s.EditMessage(ctx, m, 1, "x"); err != nil {
		t.Fatalf("author edit: %v", err)
	}

	item, err := s.repos.Content.Get(ctx, models.ContentRef{Kind: models.KindMessage, ID: m})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.Content != "x" {
		t.Fatalf("expected body x, got %q", item.Content)
	}

	if err := s.EditMessage(ctx, "missing", 1, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteMessage(ctx, m, 2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-author delete, got %v", err)
	}
	if err := s.DeleteMessage(ctx, m, adminID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := s.DeleteMessage(ctx, m, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCommentPermissions(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	addUser(t, s, 2)
	addUser(t, s, adminID)
	m := addMessage(t, s, 1, "post")

	c, err := s.CreateComment(ctx, 2, m, "comment")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	sc, err := s.CreateSubcomment(ctx, 2, c.ID, "reply")
	if err != nil {
		t.Fatalf("create subcomment: %v", err)
	}

	if err := s.EditComment(ctx, c.ID, 1, "hijack"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := s.EditSubcomment(ctx, sc.ID, adminID, "hijack"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := s.EditSubcomment(ctx, sc.ID, 2, "edited"); err != nil {
		t.Fatalf("edit subcomment: %v", err)
	}
	if err := s.DeleteComment(ctx, c.ID, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := s.DeleteSubcomment(ctx, sc.ID, adminID); err != nil {
		t.Fatalf("admin delete subcomment: %v", err)
	}
	if err := s.DeleteComment(ctx, c.ID, 2); err != nil {
		t.Fatalf("author delete comment: %v", err)
	}

	// subcomments are addressed by their own id, not the parent comment's
	_, err = s.Execute(ctx, "update subcomment", Payload{"user_id": 2, "comment_id": c.ID, "content": "x"})
	var missing *MissingFieldsError
	if !errors.As(err, &missing) || !strings.Contains(err.Error(), "subcomment_id") {
		t.Fatalf("expected missing subcomment_id, got %v", err)
	}

	if _, err := s.CreateComment(ctx, 2, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing message, got %v", err)
	}
	if _, err := s.CreateSubcomment(ctx, 2, c.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted comment, got %v", err)
	}
}

func TestDeleteMessageCascades(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	m := addMessage(t, s, 1, "post")
	c, err := s.CreateComment(ctx, 1, m, "comment")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if _, err := s.CreateSubcomment(ctx, 1, c.ID, "reply"); err != nil {
		t.Fatalf("create subcomment: %v", err)
	}

	if err := s.DeleteMessage(ctx, m, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.repos.Content.Get(ctx, c.Ref()); !errors.Is(err, repos.ErrNotFound) {
		t.Fatalf("expected comment to be gone, got %v", err)
	}
	if _, err := s.MessageComments(ctx, m, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBanBlocksMessages(t *testing.T) {
	s, rec := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	addUser(t, s, 2)
	m := addMessage(t, s, 2, "someone else's")
	rec.reset()

	changed, err := s.BanUser(ctx, 1)
	if err != nil || !changed {
		t.Fatalf("ban: changed=%v err=%v", changed, err)
	}
	if _, err := s.CreateMessage(ctx, NewMessage{AuthorID: 1, Content: "hi"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// banned users may still comment
	if _, err := s.CreateComment(ctx, 1, m, "still here"); err != nil {
		t.Fatalf("comment by banned user: %v", err)
	}

	changed, err = s.BanUser(ctx, 1)
	if err != nil || changed {
		t.Fatalf("second ban should be a no-op success: changed=%v err=%v", changed, err)
	}
	if _, err := s.BanUser(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.UnbanUser(ctx, 1); err != nil {
		t.Fatalf("unban: %v", err)
	}
	addMessage(t, s, 1, "back")

	want := []string{"ban user", "create comment", "ban user", "unban user", "create message"}
	got := rec.names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, got)
	}
}

func TestCreateMessageRegistersAuthor(t *testing.T) {
	s, rec := setupService(t)
	ctx := context.Background()

	item, err := s.CreateMessage(ctx, NewMessage{
		AuthorID:  7,
		Username:  "newcomer",
		AvatarURL: "https://forum.example/avatar.png",
		Content:   "first post",
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if item.Author.Username != "newcomer" {
		t.Fatalf("expected author newcomer, got %q", item.Author.Username)
	}
	if got := rec.names(); len(got) != 1 || got[0] != "create message" {
		t.Fatalf("profile sync must not broadcast, got %v", got)
	}

	if _, err := s.CreateMessage(ctx, NewMessage{AuthorID: 8, Content: "ghost"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown author, got %v", err)
	}
	_, err = s.CreateMessage(ctx, NewMessage{AuthorID: 9, Username: "x", AvatarURL: "ftp://nope", Content: "x"})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad avatar, got %v", err)
	}
}

func TestUpsertUser(t *testing.T) {
	s, rec := setupService(t)
	ctx := context.Background()

	res, err := s.Execute(ctx, "check user", Payload{"user_id": 5, "username": "bob", "avatar_url": ""})
	if err != nil {
		t.Fatalf("check user: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected user to be created")
	}

	res, err = s.Execute(ctx, "check user", Payload{"user_id": "5", "username": "bobby", "avatar_url": ""})
	if err != nil {
		t.Fatalf("check user: %v", err)
	}
	if res.Created {
		t.Fatalf("expected existing user to be updated")
	}

	u, err := s.repos.Users.GetByID(ctx, 5)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Username != "bobby" {
		t.Fatalf("expected synced username, got %q", u.Username)
	}
	if got := rec.names(); len(got) != 2 {
		t.Fatalf("expected 2 events, got %v", got)
	}
}

func TestContentLength(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)

	tests := []struct {
		name string
		body string
		want error
	}{
		{"at limit", strings.Repeat("я", 500), nil},
		{"over limit", strings.Repeat("я", 501), ErrTooLong},
		{"blank", "   ", ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateMessage(ctx, NewMessage{AuthorID: 1, Content: tt.body})
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	var tooLong *TooLongError
	_, err := s.CreateMessage(ctx, NewMessage{AuthorID: 1, Content: strings.Repeat("a", 501)})
	if !errors.As(err, &tooLong) || tooLong.Max != 500 {
		t.Fatalf("expected TooLongError{500}, got %v", err)
	}
}

func TestMissingFields(t *testing.T) {
	s, rec := setupService(t)

	_, err := s.Execute(context.Background(), "create message", Payload{"content": "hi", "username": nil})
	var missing *MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldsError, got %v", err)
	}
	if got := strings.Join(missing.Fields, ","); got != "user_id,username,avatar_url" {
		t.Fatalf("unexpected missing fields %q", got)
	}
	if err.Error() != "Missing required fields: user_id, username, avatar_url" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields")
	}
	if len(rec.names()) != 0 {
		t.Fatalf("failed operations must not broadcast")
	}
}

func TestUnknownOperation(t *testing.T) {
	s, _ := setupService(t)
	if _, err := s.Execute(context.Background(), "launch rockets", nil); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
}

func TestBroadcastOnlyOnSuccess(t *testing.T) {
	s, rec := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	addUser(t, s, 2)
	m := addMessage(t, s, 1, "post")
	rec.reset()

	failures := []struct {
		op      string
		payload Payload
	}{
		{"update message", Payload{"message_id": m, "user_id": 2, "new_content": "x"}},
		{"delete message", Payload{"message_id": "missing", "user_id": 1}},
		{"remove like message", Payload{"user_id": 1, "message_id": m, "message_type": "message"}},
		{"ignore user", Payload{"user_id": 1, "ignored_user_id": 1}},
		{"create comment", Payload{"user_id": 1, "message_id": m}},
		{"report message", Payload{"user_id": 1, "message_id": "missing", "reason": "spam"}},
		{"send notification", Payload{"user_id": 42, "text": "hi"}},
	}
	for _, f := range failures {
		t.Run(f.op, func(t *testing.T) {
			if _, err := s.Execute(ctx, f.op, f.payload); err == nil {
				t.Fatalf("expected %s to fail", f.op)
			}
		})
	}
	if got := rec.names(); len(got) != 0 {
		t.Fatalf("expected no events, got %v", got)
	}

	if _, err := s.Execute(ctx, "update message", Payload{"message_id": m, "user_id": 1, "new_content": "y"}); err != nil {
		t.Fatalf("update message: %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 || rec.events[0].name != "update message" {
		t.Fatalf("expected one update event, got %+v", rec.events)
	}
	payload := rec.events[0].payload.(map[string]interface{})
	if payload["message_id"] != m || payload["content"] != "y" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestIgnoreRoundTrip(t *testing.T) {
	s, rec := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	addUser(t, s, 2)
	addUser(t, s, 3)
	rec.reset()

	if changed, err := s.IgnoreUser(ctx, 1, 2); err != nil || !changed {
		t.Fatalf("ignore: changed=%v err=%v", changed, err)
	}
	if changed, err := s.IgnoreUser(ctx, 1, 2); err != nil || changed {
		t.Fatalf("repeat ignore should be a no-op: changed=%v err=%v", changed, err)
	}
	if _, err := s.IgnoreUser(ctx, 1, 3); err != nil {
		t.Fatalf("ignore: %v", err)
	}

	list, err := s.IgnoredUsers(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != 2 || list[1].ID != 3 {
		t.Fatalf("expected [2 3], got %+v", list)
	}

	if _, err := s.UnignoreUser(ctx, 1, 2); err != nil {
		t.Fatalf("unignore: %v", err)
	}
	list, _ = s.IgnoredUsers(ctx, 1)
	if len(list) != 1 || list[0].ID != 3 {
		t.Fatalf("expected [3], got %+v", list)
	}

	if _, err := s.IgnoreUser(ctx, 1, 1); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for self-ignore, got %v", err)
	}
	if _, err := s.IgnoreUser(ctx, 1, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	want := "ignore user,ignore user,ignore user,unignore user"
	if got := strings.Join(rec.names(), ","); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestFeedPagination(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, addMessage(t, s, 1, fmt.Sprintf("post %d", i)))
	}

	tests := []struct {
		offset, limit int
		want          []string
		hasMore       bool
	}{
		{0, 2, []string{ids[4], ids[3]}, true},
		{2, 2, []string{ids[2], ids[1]}, true},
		{3, 2, []string{ids[1], ids[0]}, false},
		{4, 10, []string{ids[0]}, false},
		{5, 10, nil, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("offset=%d,limit=%d", tt.offset, tt.limit), func(t *testing.T) {
			page, err := s.RecentMessages(ctx, nil, tt.offset, tt.limit)
			if err != nil {
				t.Fatalf("page: %v", err)
			}
			if page.HasMore != tt.hasMore {
				t.Errorf("expected hasMore=%v, got %v", tt.hasMore, page.HasMore)
			}
			if len(page.Items) != len(tt.want) {
				t.Fatalf("expected %d items, got %d", len(tt.want), len(page.Items))
			}
			for i, item := range page.Items {
				if item.ID != tt.want[i] {
					t.Errorf("item %d: expected %s, got %s", i, tt.want[i], item.ID)
				}
				if item.Age != "just now" {
					t.Errorf("expected age just now, got %q", item.Age)
				}
			}
		})
	}

	if _, err := s.RecentMessages(ctx, nil, -1, 10); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for negative offset, got %v", err)
	}
	if _, err := s.RecentMessages(ctx, nil, 0, 0); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero limit, got %v", err)
	}
}

func TestFeedRejectsLimitAboveMax(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	for i := 0; i < 55; i++ {
		addMessage(t, s, 1, fmt.Sprintf("post %d", i))
	}

	// a silently shortened page would report has_more against the wrong limit
	if _, err := s.RecentMessages(ctx, nil, 0, 60); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for limit above max, got %v", err)
	}
	if _, err := s.Execute(ctx, "get recent messages", Payload{"limit": 60}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid through the operation table, got %v", err)
	}

	page, err := s.RecentMessages(ctx, nil, 0, 50)
	if err != nil {
		t.Fatalf("page at max: %v", err)
	}
	if len(page.Items) != 50 || !page.HasMore {
		t.Fatalf("expected 50 items with more, got %d hasMore=%v", len(page.Items), page.HasMore)
	}
}

func TestFeedExcludesIgnoredAuthors(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	for _, id := range []int{1, 2, 3} {
		addUser(t, s, id)
	}

	// interleave posts so a filter applied after windowing would under-fill
	var fromThree []string
	for i := 0; i < 3; i++ {
		addMessage(t, s, 2, "noise")
		fromThree = append(fromThree, addMessage(t, s, 3, "signal"))
	}

	if _, err := s.IgnoreUser(ctx, 1, 2); err != nil {
		t.Fatalf("ignore: %v", err)
	}

	viewer := 1
	page, err := s.RecentMessages(ctx, &viewer, 0, 3)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Items) != 3 || page.HasMore {
		t.Fatalf("expected 3 items and no more, got %d (hasMore=%v)", len(page.Items), page.HasMore)
	}
	for i, item := range page.Items {
		if item.Author.ID != 3 {
			t.Fatalf("item %d by ignored author %d", i, item.Author.ID)
		}
		if item.ID != fromThree[2-i] {
			t.Fatalf("item %d: expected %s, got %s", i, fromThree[2-i], item.ID)
		}
	}

	anon, err := s.RecentMessages(ctx, nil, 0, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(anon.Items) != 6 {
		t.Fatalf("anonymous viewers see everything, got %d", len(anon.Items))
	}

	if _, err := s.UnignoreUser(ctx, 1, 2); err != nil {
		t.Fatalf("unignore: %v", err)
	}
	page, _ = s.RecentMessages(ctx, &viewer, 0, 10)
	if len(page.Items) != 6 {
		t.Fatalf("expected 6 items after unignore, got %d", len(page.Items))
	}

	unknown := 42
	if _, err := s.RecentMessages(ctx, &unknown, 0, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown viewer, got %v", err)
	}
}

func TestThreadNestingAndFiltering(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	for _, id := range []int{1, 2, 3} {
		addUser(t, s, id)
	}
	m := addMessage(t, s, 1, "post")

	c1, _ := s.CreateComment(ctx, 2, m, "from two")
	c2, _ := s.CreateComment(ctx, 3, m, "from three")
	if _, err := s.CreateSubcomment(ctx, 3, c1.ID, "three replies"); err != nil {
		t.Fatalf("create subcomment: %v", err)
	}
	if _, err := s.CreateSubcomment(ctx, 1, c1.ID, "author replies"); err != nil {
		t.Fatalf("create subcomment: %v", err)
	}
	if _, err := s.Like(ctx, 1, c2.Ref()); err != nil {
		t.Fatalf("like: %v", err)
	}

	viewer := 1
	thread, err := s.MessageComments(ctx, m, &viewer)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(thread) != 2 || thread[0].ID != c1.ID || thread[1].ID != c2.ID {
		t.Fatalf("expected comments oldest first, got %+v", thread)
	}
	if len(thread[0].Children) != 2 {
		t.Fatalf("expected 2 subcomments, got %d", len(thread[0].Children))
	}
	if !thread[1].Likes.UserVoted || thread[1].Likes.Total != 1 {
		t.Fatalf("unexpected likes %+v", thread[1].Likes)
	}

	if _, err := s.IgnoreUser(ctx, 1, 3); err != nil {
		t.Fatalf("ignore: %v", err)
	}
	thread, _ = s.MessageComments(ctx, m, &viewer)
	if len(thread) != 1 || len(thread[0].Children) != 1 {
		t.Fatalf("expected author 3 hidden everywhere, got %+v", thread)
	}

	page, _ := s.RecentMessages(ctx, &viewer, 0, 10)
	if len(page.Items) != 1 || len(page.Items[0].Children) != 1 {
		t.Fatalf("expected nested filtering in the feed, got %+v", page.Items)
	}
}

func TestUserPostsAndTopUsers(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	for _, id := range []int{1, 2, 3} {
		addUser(t, s, id)
	}

	m1 := addMessage(t, s, 1, "a")
	addMessage(t, s, 1, "b")
	m3 := addMessage(t, s, 2, "c")
	addMessage(t, s, 3, "d")
	if _, err := s.CreateComment(ctx, 3, m1, "comment"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := s.Like(ctx, 1, models.ContentRef{Kind: models.KindMessage, ID: m3}); err != nil {
		t.Fatalf("like: %v", err)
	}

	posts, err := s.UserPosts(ctx, 1, nil)
	if err != nil {
		t.Fatalf("user posts: %v", err)
	}
	if len(posts) != 2 || posts[1].ID != m1 || len(posts[1].Children) != 1 {
		t.Fatalf("unexpected posts %+v", posts)
	}
	if _, err := s.UserPosts(ctx, 42, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	top, err := s.TopUsers(ctx)
	if err != nil {
		t.Fatalf("top users: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 users, got %d", len(top))
	}

	// user 1 leads on messages; 3 beats 2 on comments
	order := []int{top[0].ID, top[1].ID, top[2].ID}
	if order[0] != 1 || order[1] != 3 || order[2] != 2 {
		t.Fatalf("unexpected ranking %v", order)
	}
	if top[0].MessageCount != 2 || top[1].CommentCount != 1 || top[2].LikeCount != 1 {
		t.Fatalf("unexpected counters %+v", top)
	}
}

func TestReportsAndNotifications(t *testing.T) {
	s, rec := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	addUser(t, s, 2)
	m := addMessage(t, s, 1, "post")
	c, _ := s.CreateComment(ctx, 1, m, "comment")
	rec.reset()

	res, err := s.Execute(ctx, "report message", Payload{"user_id": 2, "message_id": m, "reason": "spam"})
	if err != nil {
		t.Fatalf("report message: %v", err)
	}
	if !res.Created || res.Data["report_id"] == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := s.ReportComment(ctx, 2, c.ID, "rude"); err != nil {
		t.Fatalf("report comment: %v", err)
	}
	if _, err := s.ReportComment(ctx, 2, "missing", "rude"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.SendNotification(ctx, 1, "you were reported"); err != nil {
		t.Fatalf("send notification: %v", err)
	}
	res, err = s.Execute(ctx, "get notifications", Payload{"user_id": "1"})
	if err != nil {
		t.Fatalf("get notifications: %v", err)
	}
	list := res.Data["notifications"].([]models.Notification)
	if len(list) != 1 || list[0].Text != "you were reported" || list[0].Read {
		t.Fatalf("unexpected notifications %+v", list)
	}

	want := "report message,report comment,send notification"
	if got := strings.Join(rec.names(), ","); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestPruneNotificationsRetention(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	addUser(t, s, 1)
	if _, err := s.SendNotification(ctx, 1, "welcome"); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, retention := range []time.Duration{0, -time.Hour} {
		if _, err := s.PruneNotifications(ctx, retention); !errors.Is(err, ErrInvalid) {
			t.Errorf("retention %v: expected ErrInvalid, got %v", retention, err)
		}
	}

	n, err := s.PruneNotifications(ctx, time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing pruned, got %d", n)
	}
	list, err := s.Notifications(ctx, 1)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected notification to survive, got %d", len(list))
	}
}

func TestOperationsRegistered(t *testing.T) {
	want := []string{
		"check user", "create message", "update message", "delete message",
		"create comment", "update comment", "delete comment",
		"create subcomment", "update subcomment", "delete subcomment",
		"like message", "remove like message", "get message likes",
		"ban user", "unban user", "ignore user", "unignore user", "get ignored users",
		"report message", "report comment", "get top users", "get recent messages",
		"send notification", "get notifications", "get message comments", "get user posts",
	}

	registered := map[string]bool{}
	for _, name := range Operations() {
		registered[name] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("operation %q is not registered", name)
		}
	}
	if len(registered) != len(want) {
		t.Errorf("expected %d operations, got %d", len(want), len(registered))
	}
}
