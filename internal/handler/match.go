package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/friendforge/internal/matching"
	"github.com/friendforge/internal/middleware"
	"github.com/friendforge/internal/repository"
)

// MatchHandler подбирает кандидатов по пересечению навыков.
type MatchHandler struct {
	userRepo       *repository.UserRepository
	candidateLimit int
}

func NewMatchHandler(userRepo *repository.UserRepository, candidateLimit int) *MatchHandler {
	if candidateLimit <= 0 {
		candidateLimit = 200
	}
	return &MatchHandler{userRepo: userRepo, candidateLimit: candidateLimit}
}

type MatchRequest struct {
	Role   string   `json:"role"`
	Skills []string `json:"skills"`
}

type MatchResponse struct {
	Role       string               `json:"role"`
	Candidates []matching.Candidate `json:"candidates"`
}

func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	wanted := make([]string, 0, len(req.Skills))
	for _, s := range req.Skills {
		if s = strings.TrimSpace(s); s != "" {
			wanted = append(wanted, s)
		}
	}
	if len(wanted) == 0 {
		writeError(w, http.StatusBadRequest, "skills required")
		return
	}
	users, err := h.userRepo.ListOthers(r.Context(), userID, h.candidateLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load candidates")
		return
	}
	writeJSON(w, http.StatusOK, MatchResponse{
		Role:       strings.TrimSpace(req.Role),
		Candidates: matching.Rank(wanted, users),
	})
}
