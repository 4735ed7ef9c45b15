package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/waifu-verifier-backend/internal/http/response"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

type ProfileHandler struct {
	profiles services.ProfileService
}

func NewProfileHandler(profiles services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GET /api/profiles/:id
func (h *ProfileHandler) GetPublic(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	p, err := h.profiles.GetPublic(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, p)
}

// PATCH /api/me/profile
// body: any of { username, name, bio, instagram, tiktok, twitter }
func (h *ProfileHandler) Update(c *gin.Context) {
	var req services.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), currentUser(c), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"profile": p})
}

// POST /api/me/avatar (multipart/form-data)
// field: "file"
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	raw, err := readFormFile(c, "file")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	p, err := h.profiles.UploadAvatar(c.Request.Context(), currentUser(c), raw)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"profile": p})
}
