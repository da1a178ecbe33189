package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/friendforge/internal/logger"
	"github.com/friendforge/internal/metrics"
	"github.com/friendforge/internal/middleware"
	"github.com/friendforge/internal/model"
	"github.com/friendforge/internal/push"
	"github.com/friendforge/internal/repository"
	"github.com/friendforge/internal/ws"
)

// RequestHandler обрабатывает заявки в друзья. События уходят адресату по
// WebSocket (если он подключён) и в push-сервис.
type RequestHandler struct {
	reqRepo  *repository.RequestRepository
	userRepo *repository.UserRepository
	hub      *ws.Hub
	push     *push.Client
}

func NewRequestHandler(reqRepo *repository.RequestRepository, userRepo *repository.UserRepository, hub *ws.Hub, pushClient *push.Client) *RequestHandler {
	return &RequestHandler{reqRepo: reqRepo, userRepo: userRepo, hub: hub, push: pushClient}
}

type CreateRequestRequest struct {
	ToUID string `json:"to_uid"`
}

func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToUID == "" {
		writeError(w, http.StatusBadRequest, "to_uid required")
		return
	}
	if req.ToUID == userID {
		writeError(w, http.StatusBadRequest, "нельзя отправить заявку самому себе")
		return
	}
	if _, err := h.userRepo.GetByID(r.Context(), req.ToUID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}
	fr := &model.FriendRequest{
		ID:        uuid.New().String(),
		FromUID:   userID,
		ToUID:     req.ToUID,
		Status:    model.RequestStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.reqRepo.Create(r.Context(), fr); err != nil {
		if errors.Is(err, repository.ErrDuplicateRequest) {
			metrics.RequestsTotal.WithLabelValues("duplicate").Inc()
			writeError(w, http.StatusConflict, "Заявка уже существует или вы уже друзья")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create request")
		return
	}
	metrics.RequestsTotal.WithLabelValues("created").Inc()
	h.notifyCounterpart(r, fr, ws.EventRequestReceived, fr.ToUID, "Новая заявка в друзья")
	writeJSON(w, http.StatusCreated, fr)
}

// ListIncoming возвращает входящие pending-заявки с профилями отправителей.
func (h *RequestHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	list, err := h.reqRepo.ListIncoming(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list})
}

func (h *RequestHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	requestID := chi.URLParam(r, "id")
	fr, err := h.reqRepo.Accept(r.Context(), requestID, userID)
	if err != nil {
		h.writeMutationError(w, err, "accept")
		return
	}
	metrics.RequestsTotal.WithLabelValues("accepted").Inc()
	// Уведомляем отправителя заявки, что её приняли.
	h.notifyCounterpart(r, fr, ws.EventRequestAccepted, fr.FromUID, "Ваша заявка принята")
	writeJSON(w, http.StatusOK, fr)
}

func (h *RequestHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	requestID := chi.URLParam(r, "id")
	fr, err := h.reqRepo.Reject(r.Context(), requestID, userID)
	if err != nil {
		h.writeMutationError(w, err, "reject")
		return
	}
	metrics.RequestsTotal.WithLabelValues("rejected").Inc()
	writeJSON(w, http.StatusOK, fr)
}

func (h *RequestHandler) writeMutationError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, repository.ErrNotPending):
		writeError(w, http.StatusConflict, "request is not pending")
	default:
		logger.Errorf("request %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "failed to update request")
	}
}

// notifyCounterpart шлёт событие по WebSocket и в push. Профиль инициатора
// события подгружается для payload; ошибки здесь не ломают основной ответ.
func (h *RequestHandler) notifyCounterpart(r *http.Request, fr *model.FriendRequest, event ws.EventType, targetUID, pushTitle string) {
	payload := ws.RequestEventPayload{
		RequestID: fr.ID,
		FromUID:   fr.FromUID,
		ToUID:     fr.ToUID,
		Status:    fr.Status,
	}
	actorID := fr.FromUID
	if event == ws.EventRequestAccepted {
		actorID = fr.ToUID
	}
	actorName := ""
	if actor, err := h.userRepo.GetByID(r.Context(), actorID); err == nil {
		pub := actor.ToPublic()
		payload.From = &pub
		actorName = actor.Name
	}
	if h.hub != nil {
		h.hub.SendToUser(targetUID, ws.OutgoingMessage{Type: event, Payload: payload})
	}
	if h.push != nil {
		body := actorName
		go h.push.Notify(context.Background(), targetUID, pushTitle, body, map[string]string{
			"type":       string(event),
			"request_id": fr.ID,
		})
	}
}
