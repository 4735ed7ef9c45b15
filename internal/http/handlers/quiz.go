package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/http/response"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

type QuizHandler struct {
	quiz services.QuizService
}

func NewQuizHandler(quiz services.QuizService) *QuizHandler {
	return &QuizHandler{quiz: quiz}
}

// POST /api/quiz/sessions
// body: { "character_id": "...", "level": 1 }
func (h *QuizHandler) Start(c *gin.Context) {
	var req struct {
		CharacterID uuid.UUID `json:"character_id"`
		Level       int       `json:"level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.CharacterID == uuid.Nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_character_id", fmt.Errorf("character_id is required")))
		return
	}
	view, err := h.quiz.StartSession(c.Request.Context(), currentUser(c), req.CharacterID, req.Level)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"session": view})
}

// GET /api/quiz/sessions/:id
func (h *QuizHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	view, err := h.quiz.GetSession(c.Request.Context(), currentUser(c), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": view})
}

// POST /api/quiz/sessions/:id/answer
// body: { "question_id": "...", "option": "A" }
func (h *QuizHandler) Answer(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var req struct {
		QuestionID uuid.UUID `json:"question_id"`
		Option     string    `json:"option"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.quiz.Answer(c.Request.Context(), currentUser(c), id, req.QuestionID, req.Option)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}
