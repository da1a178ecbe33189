package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendforge/internal/middleware"
	"github.com/friendforge/internal/repository"
	"github.com/friendforge/internal/service"
)

// MessageHandler — REST-путь для сообщений. Пишет через тот же
// MessageService, что и WebSocket, так что оба пути публикуют одинаковые
// события в поток.
type MessageHandler struct {
	messages *service.MessageService
	msgRepo  *repository.MessageRepository
}

func NewMessageHandler(messages *service.MessageService, msgRepo *repository.MessageRepository) *MessageHandler {
	return &MessageHandler{messages: messages, msgRepo: msgRepo}
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReceiverID == "" {
		writeError(w, http.StatusBadRequest, "receiver_id required")
		return
	}
	msg, err := h.messages.Send(r.Context(), userID, req.ReceiverID, req.Content)
	if err != nil {
		h.writeSendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "id")
	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	msg, err := h.messages.Edit(r.Context(), userID, messageID, req.Content)
	if err != nil {
		h.writeSendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "id")
	if err := h.messages.Delete(r.Context(), userID, messageID); err != nil {
		h.writeSendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetConversation отдаёт слитую историю обоих направлений для холодной
// загрузки. Живые обновления клиент получает по WebSocket.
func (h *MessageHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID := chi.URLParam(r, "peerId")
	if peerID == "" || peerID == userID {
		writeError(w, http.StatusBadRequest, "invalid peer_id")
		return
	}
	msgs, err := h.msgRepo.ListConversation(r.Context(), userID, peerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *MessageHandler) writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "Сообщение пустое")
	case errors.Is(err, service.ErrSelfMessage):
		writeError(w, http.StatusBadRequest, "Нельзя написать самому себе")
	case errors.Is(err, service.ErrNotOwner):
		writeError(w, http.StatusForbidden, "Можно менять только свои сообщения")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "message operation failed")
	}
}
