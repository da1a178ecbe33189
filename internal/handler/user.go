package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/friendforge/internal/middleware"
	"github.com/friendforge/internal/model"
	"github.com/friendforge/internal/repository"
)

const maxSkills = 50

type UserHandler struct {
	userRepo *repository.UserRepository
}

func NewUserHandler(userRepo *repository.UserRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

// GetMe возвращает собственный профиль (с email, в отличие от публичного вида).
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetUser возвращает публичный профиль с перечнем друзей.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := h.userRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	pub := user.ToPublic()
	friends, err := h.userRepo.GetFriendIDs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get friends")
		return
	}
	pub.Friends = friends
	writeJSON(w, http.StatusOK, pub)
}

// SearchUsers ищет по имени без учёта регистра. Пустой q — пустой результат.
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, []model.UserPublic{})
		return
	}
	currentUserID := middleware.GetUserID(r.Context())
	users, err := h.userRepo.SearchByName(r.Context(), query, currentUserID, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	result := make([]model.UserPublic, 0, len(users))
	for _, u := range users {
		result = append(result, u.ToPublic())
	}
	writeJSON(w, http.StatusOK, result)
}

// UpdateProfileRequest — поля профиля; nil означает "не менять".
type UpdateProfileRequest struct {
	Name       *string        `json:"name"`
	University *string        `json:"university"`
	Extra      *string        `json:"extra"`
	AvatarURL  *string        `json:"avatar_url"`
	CVURL      *string        `json:"cv_url"`
	Skills     *[]model.Skill `json:"skills"`
}

// UpdateProfile обновляет собственный профиль. Вызывается и сразу после
// загрузки CV (заполнение анкеты), и при последующих правках.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "name cannot be empty")
			return
		}
		if len(name) > 100 {
			writeError(w, http.StatusBadRequest, "name too long")
			return
		}
		user.Name = name
	}
	if req.University != nil {
		user.University = strings.TrimSpace(*req.University)
	}
	if req.Extra != nil {
		user.Extra = strings.TrimSpace(*req.Extra)
	}
	if req.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}
	if req.CVURL != nil {
		user.CVURL = strings.TrimSpace(*req.CVURL)
	}
	if req.Skills != nil {
		if len(*req.Skills) > maxSkills {
			writeError(w, http.StatusBadRequest, "too many skills")
			return
		}
		skills := make([]model.Skill, 0, len(*req.Skills))
		for _, s := range *req.Skills {
			name := strings.TrimSpace(s.Name)
			if name == "" {
				continue
			}
			skills = append(skills, model.Skill{Name: name, Level: strings.TrimSpace(s.Level)})
		}
		user.Skills = skills
	}

	if err := h.userRepo.UpdateProfile(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
