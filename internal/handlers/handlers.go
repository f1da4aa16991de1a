package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"forum-feed/internal/middleware"
	"forum-feed/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// maxBodyBytes bounds REST request bodies and websocket frames
const maxBodyBytes = 1 << 20

type Handler struct {
	service  *service.Service
	hub      *Hub
	origins  []string
	upgrader websocket.Upgrader
}

func NewHandler(svc *service.Service, hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		service:  svc,
		hub:      hub,
		origins:  allowedOrigins,
		upgrader: newUpgrader(allowedOrigins),
	}
}

type route struct {
	method string
	path   string
	op     string
}

// routes keeps the forum client's flat paths; each maps onto one operation
var routes = []route{
	{http.MethodPost, "/check_user", "check user"},

	{http.MethodPost, "/create_message", "create message"},
	{http.MethodPost, "/update_message", "update message"},
	{http.MethodPost, "/delete_message", "delete message"},
	{http.MethodGet, "/get_recent_messages", "get recent messages"},
	{http.MethodGet, "/get_user_posts/{user_id}", "get user posts"},

	{http.MethodPost, "/create_comment", "create comment"},
	{http.MethodPost, "/update_comment", "update comment"},
	{http.MethodPost, "/delete_comment", "delete comment"},
	{http.MethodPost, "/create_subcomment", "create subcomment"},
	{http.MethodPost, "/update_subcomment", "update subcomment"},
	{http.MethodPost, "/delete_subcomment", "delete subcomment"},
	{http.MethodGet, "/get_message_comments/{message_id}", "get message comments"},

	{http.MethodPost, "/like_message", "like message"},
	{http.MethodPost, "/remove_like_message", "remove like message"},
	{http.MethodGet, "/get_message_likes/{message_id}", "get message likes"},

	{http.MethodPost, "/ban_user/{user_id}", "ban user"},
	{http.MethodPost, "/unban_user/{user_id}", "unban user"},
	{http.MethodGet, "/get_top_users", "get top users"},

	{http.MethodPost, "/ignore_user", "ignore user"},
	{http.MethodPost, "/unignore_user", "unignore user"},
	{http.MethodGet, "/get_ignored_users/{user_id}", "get ignored users"},

	{http.MethodPost, "/report_message", "report message"},
	{http.MethodPost, "/report_comment", "report comment"},

	{http.MethodPost, "/send_notification", "send notification"},
	{http.MethodGet, "/get_notifications/{user_id}", "get notifications"},
}

// Routes builds the HTTP router: REST operations plus the websocket endpoint
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(h.origins))

	r.Get("/ws", h.ServeWS)
	r.Get("/healthz", h.Health)

	for _, rt := range routes {
		r.Method(rt.method, rt.path, h.operation(rt.op))
	}
	return r
}

// Health reports liveness and the number of connected websocket clients
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": h.hub.ClientCount(),
	})
}

// operation adapts a named service operation to REST. Query and path
// parameters are merged over the JSON body; path parameters win.
func (h *Handler) operation(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := readPayload(w, r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]interface{}{"message": "Request body too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "Invalid JSON"})
			return
		}

		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				payload[key] = values[0]
			}
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				if key != "*" {
					payload[key] = rctx.URLParams.Values[i]
				}
			}
		}

		res, err := h.service.Execute(r.Context(), name, payload)
		if err != nil {
			status, message := statusFor(err)
			if status == http.StatusInternalServerError {
				log.Printf("%s failed: %v", name, err)
			}
			writeJSON(w, status, map[string]interface{}{"message": message})
			return
		}

		body := make(map[string]interface{}, len(res.Data)+1)
		for k, v := range res.Data {
			body[k] = v
		}
		body["message"] = res.Message
		writeJSON(w, successStatus(res), body)
	}
}

func readPayload(w http.ResponseWriter, r *http.Request) (service.Payload, error) {
	payload := service.Payload{}
	if r.Body == nil || r.Method == http.MethodGet {
		return payload, nil
	}

	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload)
	if errors.Is(err, io.EOF) {
		return service.Payload{}, nil
	}
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = service.Payload{}
	}
	return payload, nil
}

func successStatus(res service.Result) int {
	if res.Created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// statusFor maps service errors to an HTTP status and a client-facing message
func statusFor(err error) (int, string) {
	var missing *service.MissingFieldsError
	var tooLong *service.TooLongError

	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest, missing.Error()
	case errors.As(err, &tooLong):
		return http.StatusBadRequest, tooLong.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, publicMessage(err, service.ErrNotFound)
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, publicMessage(err, service.ErrForbidden)
	case errors.Is(err, service.ErrAlreadyVoted),
		errors.Is(err, service.ErrNoExistingVote):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidContentKind):
		return http.StatusBadRequest, "Invalid message type"
	case errors.Is(err, service.ErrUnknownOperation):
		return http.StatusBadRequest, "Unknown event type"
	case errors.Is(err, service.ErrInvalid):
		return http.StatusBadRequest, publicMessage(err, service.ErrInvalid)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// publicMessage drops the trailing sentinel text from a wrapped error
func publicMessage(err, sentinel error) string {
	msg := strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
	if msg == "" {
		return sentinel.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
