package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/waifu-verifier-backend/internal/http/response"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type LeaderboardHandler struct {
	leaderboard services.LeaderboardService
	shareCards  services.ShareCardService
}

func NewLeaderboardHandler(leaderboard services.LeaderboardService, shareCards services.ShareCardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard, shareCards: shareCards}
}

// GET /api/characters/:id/leaderboard?limit=50
func (h *LeaderboardHandler) CharacterBoard(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	view, err := h.leaderboard.CharacterBoard(c.Request.Context(), id, intQuery(c, "limit", services.DefaultBoardLimit))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// GET /api/characters/:id/standing
func (h *LeaderboardHandler) MyStanding(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	st, err := h.leaderboard.MyStanding(c.Request.Context(), currentUser(c), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"standing": st})
}

// GET /api/leaderboard
func (h *LeaderboardHandler) Global(c *gin.Context) {
	view, err := h.leaderboard.Global(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// POST /api/characters/:id/share-card
func (h *LeaderboardHandler) ShareCard(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	view, err := h.shareCards.Render(c.Request.Context(), currentUser(c), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, view)
}

// GET /api/admin/leaderboard/export
func (h *LeaderboardHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.leaderboard.Export(c.Request.Context(), &buf); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	name := fmt.Sprintf("leaderboard-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
