package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"forum-feed/internal/models"
)

// Result is the outcome of an operation, independent of transport
type Result struct {
	Created bool
	Message string
	Data    map[string]interface{}
}

// Operation binds an event name to its required fields and handler
type Operation struct {
	Name     string
	Required []string
	Run      func(ctx context.Context, s *Service, p Payload) (Result, error)
}

var operations = map[string]Operation{}

func register(op Operation) {
	operations[op.Name] = op
}

// Operations lists the registered event names in sorted order
func Operations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute validates payload against the named operation and runs it under
// the store timeout
func (s *Service) Execute(ctx context.Context, name string, payload Payload) (Result, error) {
	op, ok := operations[name]
	if !ok {
		return Result{}, fmt.Errorf("%q: %w", name, ErrUnknownOperation)
	}
	if payload == nil {
		payload = Payload{}
	}
	if err := RequireFields(payload, op.Required...); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return op.Run(ctx, s, payload)
}

func init() {
	//
	// ===================== USERS =====================
	//
	register(Operation{
		Name:     "check user",
		Required: []string{"user_id", "username", "avatar_url"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			username, err := p.String("username")
			if err != nil {
				return Result{}, err
			}
			avatar, err := p.String("avatar_url")
			if err != nil {
				return Result{}, err
			}

			created, err := s.UpsertUser(ctx, userID, username, avatar)
			if err != nil {
				return Result{}, err
			}
			msg := "User updated successfully"
			if created {
				msg = "User created successfully"
			}
			return Result{Created: created, Message: msg}, nil
		},
	})

	register(Operation{
		Name:     "ban user",
		Required: []string{"user_id"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			if _, err := s.BanUser(ctx, userID); err != nil {
				return Result{}, err
			}
			return Result{Message: "User banned successfully"}, nil
		},
	})

	register(Operation{
		Name:     "unban user",
		Required: []string{"user_id"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			if _, err := s.UnbanUser(ctx, userID); err != nil {
				return Result{}, err
			}
			return Result{Message: "User unbanned successfully"}, nil
		},
	})

	register(Operation{
		Name: "get top users",
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			users, err := s.TopUsers(ctx)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: "OK", Data: map[string]interface{}{"users": users}}, nil
		},
	})

	//
	// ===================== MESSAGES =====================
	//
	register(Operation{
		Name:     "create message",
		Required: []string{"user_id", "username", "avatar_url", "content"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			var in NewMessage
			var err error
			if in.AuthorID, err = p.Int("user_id"); err != nil {
				return Result{}, err
			}
			if in.Username, err = p.String("username"); err != nil {
				return Result{}, err
			}
			if in.AvatarURL, err = p.String("avatar_url"); err != nil {
				return Result{}, err
			}
			if in.Content, err = p.String("content"); err != nil {
				return Result{}, err
			}

			item, err := s.CreateMessage(ctx, in)
			if err != nil {
				return Result{}, err
			}
			return Result{Created: true, Message: "Message created successfully", Data: contentPayload(*item)}, nil
		},
	})

	register(editOperation("update message", models.KindMessage, "new_content"))
	register(deleteOperation("delete message", models.KindMessage))

	register(Operation{
		Name: "get recent messages",
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			offset, err := p.IntOr("offset", 0)
			if err != nil {
				return Result{}, err
			}
			limit, err := p.IntOr("limit", s.opts.DefaultPageSize)
			if err != nil {
				return Result{}, err
			}
			viewer, err := p.OptionalInt("user_id")
			if err != nil {
				return Result{}, err
			}

			page, err := s.RecentMessages(ctx, viewer, offset, limit)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: "OK", Data: map[string]interface{}{
				"items":    page.Items,
				"has_more": page.HasMore,
			}}, nil
		},
	})

	register(Operation{
		Name:     "get user posts",
		Required: []string{"user_id"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			viewer, err := p.OptionalInt("viewer_id")
			if err != nil {
				return Result{}, err
			}
			posts, err := s.UserPosts(ctx, userID, viewer)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: "OK", Data: map[string]interface{}{"posts": posts}}, nil
		},
	})

	//
	// ===================== COMMENTS =====================
	//
	register(Operation{
		Name:     "create comment",
		Required: []string{"user_id", "message_id", "content"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			return runCreateChild(ctx, p, "message_id", s.CreateComment, "Comment created successfully")
		},
	})
	register(editOperation("update comment", models.KindComment, "content"))
	register(deleteOperation("delete comment", models.KindComment))

	register(Operation{
		Name:     "create subcomment",
		Required: []string{"user_id", "comment_id", "content"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			return runCreateChild(ctx, p, "comment_id", s.CreateSubcomment, "Subcomment created successfully")
		},
	})
	register(editOperation("update subcomment", models.KindSubcomment, "content"))
	register(deleteOperation("delete subcomment", models.KindSubcomment))

	register(Operation{
		Name:     "get message comments",
		Required: []string{"message_id"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			messageID, err := p.String("message_id")
			if err != nil {
				return Result{}, err
			}
			viewer, err := p.OptionalInt("user_id")
			if err != nil {
				return Result{}, err
			}
			comments, err := s.MessageComments(ctx, messageID, viewer)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: "OK", Data: map[string]interface{}{"comments": comments}}, nil
		},
	})

	//
	// ===================== LIKES =====================
	//
	register(voteOperation("like message", "Like added successfully", (*Service).Like))
	register(voteOperation("remove like message", "Like removed successfully", (*Service).Unlike))
	register(voteOperation("get message likes", "OK", (*Service).Likes))

	//
	// ===================== IGNORES =====================
	//
	register(ignoreOperation("ignore user", "User ignored successfully", (*Service).IgnoreUser))
	register(ignoreOperation("unignore user", "User unignored successfully", (*Service).UnignoreUser))

	register(Operation{
		Name:     "get ignored users",
		Required: []string{"user_id"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			users, err := s.IgnoredUsers(ctx, userID)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: "OK", Data: map[string]interface{}{"ignored_users": users}}, nil
		},
	})

	//
	// ===================== REPORTS & NOTIFICATIONS =====================
	//
	register(reportOperation("report message", "message_id", (*Service).ReportMessage))
	register(reportOperation("report comment", "comment_id", (*Service).ReportComment))

	register(Operation{
		Name:     "send notification",
		Required: []string{"user_id", "text"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			text, err := p.String("text")
			if err != nil {
				return Result{}, err
			}
			n, err := s.SendNotification(ctx, userID, text)
			if err != nil {
				return Result{}, err
			}
			return Result{Created: true, Message: "Notification sent successfully", Data: map[string]interface{}{
				"notification_id": n.ID,
			}}, nil
		},
	})

	register(Operation{
		Name:     "get notifications",
		Required: []string{"user_id"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			list, err := s.Notifications(ctx, userID)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: "OK", Data: map[string]interface{}{"notifications": list}}, nil
		},
	})
}

func runCreateChild(ctx context.Context, p Payload, parentField string,
	create func(context.Context, int, string, string) (*models.ContentItem, error), msg string) (Result, error) {
	userID, err := p.Int("user_id")
	if err != nil {
		return Result{}, err
	}
	parentID, err := p.String(parentField)
	if err != nil {
		return Result{}, err
	}
	content, err := p.String("content")
	if err != nil {
		return Result{}, err
	}

	item, err := create(ctx, userID, parentID, content)
	if err != nil {
		return Result{}, err
	}
	return Result{Created: true, Message: msg, Data: contentPayload(*item)}, nil
}

func editOperation(name string, kind models.ContentKind, contentField string) Operation {
	idField := idKey(kind)
	return Operation{
		Name:     name,
		Required: []string{idField, "user_id", contentField},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			id, err := p.String(idField)
			if err != nil {
				return Result{}, err
			}
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			content, err := p.String(contentField)
			if err != nil {
				return Result{}, err
			}

			ref := models.ContentRef{Kind: kind, ID: id}
			if err := s.edit(ctx, ref, userID, content); err != nil {
				return Result{}, err
			}
			return Result{Message: capitalize(kind) + " updated successfully"}, nil
		},
	}
}

func deleteOperation(name string, kind models.ContentKind) Operation {
	idField := idKey(kind)
	return Operation{
		Name:     name,
		Required: []string{idField, "user_id"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			id, err := p.String(idField)
			if err != nil {
				return Result{}, err
			}
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}

			ref := models.ContentRef{Kind: kind, ID: id}
			if err := s.delete(ctx, ref, userID); err != nil {
				return Result{}, err
			}
			return Result{Message: capitalize(kind) + " deleted successfully"}, nil
		},
	}
}

func voteOperation(name, msg string, run func(*Service, context.Context, int, models.ContentRef) (models.Tally, error)) Operation {
	return Operation{
		Name:     name,
		Required: []string{"user_id", "message_id", "message_type"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			id, err := p.String("message_id")
			if err != nil {
				return Result{}, err
			}
			tag, err := p.String("message_type")
			if err != nil {
				return Result{}, err
			}
			kind, err := ParseContentKind(tag)
			if err != nil {
				return Result{}, err
			}

			tally, err := run(s, ctx, userID, models.ContentRef{Kind: kind, ID: id})
			if err != nil {
				return Result{}, err
			}
			return Result{Message: msg, Data: map[string]interface{}{
				"total":     tally.Total,
				"userLiked": tally.UserVoted,
			}}, nil
		},
	}
}

func ignoreOperation(name, msg string, run func(*Service, context.Context, int, int) (bool, error)) Operation {
	return Operation{
		Name:     name,
		Required: []string{"user_id", "ignored_user_id"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			targetID, err := p.Int("ignored_user_id")
			if err != nil {
				return Result{}, err
			}
			changed, err := run(s, ctx, userID, targetID)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: msg, Data: map[string]interface{}{"changed": changed}}, nil
		},
	}
}

func reportOperation(name, idField string, run func(*Service, context.Context, int, string, string) (*models.Report, error)) Operation {
	return Operation{
		Name:     name,
		Required: []string{"user_id", idField, "reason"},
		Run: func(ctx context.Context, s *Service, p Payload) (Result, error) {
			userID, err := p.Int("user_id")
			if err != nil {
				return Result{}, err
			}
			id, err := p.String(idField)
			if err != nil {
				return Result{}, err
			}
			reason, err := p.String("reason")
			if err != nil {
				return Result{}, err
			}
			report, err := run(s, ctx, userID, id, reason)
			if err != nil {
				return Result{}, err
			}
			return Result{Created: true, Message: "Report submitted successfully", Data: map[string]interface{}{
				"report_id": report.ID,
			}}, nil
		},
	}
}

func capitalize(kind models.ContentKind) string {
	name := kind.String()
	return strings.ToUpper(name[:1]) + name[1:]
}
