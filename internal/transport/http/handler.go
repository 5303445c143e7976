package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	httpmw "github.com/cwrk-planet/realtime-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/realtime-service/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type HistorySvc interface {
	History(ctx context.Context, who domain.Identity, channelID, after string, limit int) ([]domain.Message, string, error)
}

type AccessSvc interface {
	ChannelForUser(ctx context.Context, uid domain.UserID, channelID string) (*domain.Channel, error)
}

// Relay: часть realtime.Core, которую использует REST (публикация и участники звонка).
type Relay interface {
	PostMessage(ctx context.Context, author domain.Identity, channelID, content string, attachment *string) (*domain.Message, error)
	CallUsers(channelID string) []domain.UserID
}

type Handler struct {
	history HistorySvc
	access  AccessSvc
	relay   Relay
}

func NewHandler(history HistorySvc, access AccessSvc, relay Relay) *Handler {
	return &Handler{
		history: history,
		access:  access,
		relay:   relay,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusOf переводит доменную ошибку в HTTP-статус.
func StatusOf(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(ctx).Error(op, "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:    domain.CodeOf(err),
		Message: domain.PublicMessage(err),
	}})
}

func identity(r *http.Request) domain.Identity {
	id, _ := httpmw.IdentityFromCtx(r.Context())
	return id
}

// GET /api/channels/{id}/messages?after=&limit=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	after := r.URL.Query().Get("after")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(r.Context(), w, "handler.GetHistory", errors.Join(domain.ErrInvalidArgument, err))
			return
		}
		limit = n
	}

	items, next, err := h.history.History(r.Context(), identity(r), channelID, after, limit)
	if err != nil {
		writeError(r.Context(), w, "handler.GetHistory", err)
		return
	}

	resp := HistoryResponse{Items: make([]MessageItem, 0, len(items)), NextCursor: next}
	for i := range items {
		resp.Items = append(resp.Items, toMessageItem(&items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/channels/{id}/messages
// Сообщение проходит тот же конвейер, что и send_message по WebSocket.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: ErrorBody{
				Code:    domain.CodeInvalidArgument,
				Message: "request body too large",
			}})
			return
		}
		writeError(r.Context(), w, "handler.PostMessage", domain.ErrBadPayload)
		return
	}

	m, err := h.relay.PostMessage(r.Context(), identity(r), chi.URLParam(r, "id"), req.Content, req.Attachment)
	if err != nil {
		writeError(r.Context(), w, "handler.PostMessage", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageItem(m))
}

// GET /api/channels/{id}/call
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	if _, err := h.access.ChannelForUser(r.Context(), identity(r).UserID, channelID); err != nil {
		writeError(r.Context(), w, "handler.GetCall", err)
		return
	}

	writeJSON(w, http.StatusOK, CallResponse{
		ChannelID:    channelID,
		Participants: h.relay.CallUsers(channelID),
	})
}
