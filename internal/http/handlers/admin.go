package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/http/response"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

type AdminHandler struct {
	admin services.AdminService
}

func NewAdminHandler(admin services.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// PUT /api/admin/config/:key
// body: { "value": "..." }
func (h *AdminHandler) SetConfig(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	cfg, err := h.admin.SetConfig(c.Request.Context(), c.Param("key"), req.Value)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"key": cfg.Key, "value": cfg.Value})
}

// POST /api/admin/characters
func (h *AdminHandler) CreateCharacter(c *gin.Context) {
	var req services.CharacterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ch, err := h.admin.CreateCharacter(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"character": ch})
}

// PATCH /api/admin/characters/:id
// Absent fields are left unchanged.
func (h *AdminHandler) UpdateCharacter(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var req services.CharacterPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ch, err := h.admin.UpdateCharacter(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"character": ch})
}

// POST /api/admin/characters/:id/assets (multipart/form-data)
// fields: "file", "kind" (image|background|card|visual), "slot" (visual only)
func (h *AdminHandler) UploadCharacterAsset(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+(1<<20))
	raw, err := readFormFile(c, "file")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	ch, err := h.admin.UploadCharacterAsset(c.Request.Context(), id, services.AssetUpload{
		Kind:  c.PostForm("kind"),
		Slot:  c.PostForm("slot"),
		Image: raw,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"character": ch})
}

// PUT /api/admin/characters/:id/result
func (h *AdminHandler) UpsertResult(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var req services.ResultInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	r, err := h.admin.UpsertResult(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": r})
}

// POST /api/admin/questions
// body: QuestionInput plus "character_id"
func (h *AdminHandler) CreateQuestion(c *gin.Context) {
	var req struct {
		CharacterID string `json:"character_id"`
		services.QuestionInput
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	charID, err := uuid.Parse(strings.TrimSpace(req.CharacterID))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_character_id", fmt.Errorf("invalid character_id")))
		return
	}
	q, err := h.admin.CreateQuestion(c.Request.Context(), charID, req.QuestionInput)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"question": q})
}

// PUT /api/admin/questions/:id
func (h *AdminHandler) UpdateQuestion(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var req services.QuestionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	q, err := h.admin.UpdateQuestion(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"question": q})
}

// DELETE /api/admin/questions/:id
func (h *AdminHandler) DeleteQuestion(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.admin.DeleteQuestion(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/admin/questions/:id/image (multipart/form-data)
// field: "file"
func (h *AdminHandler) UploadQuestionImage(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+(1<<20))
	raw, err := readFormFile(c, "file")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	q, err := h.admin.UploadQuestionImage(c.Request.Context(), id, raw)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"question": q})
}

// POST /api/admin/characters/:id/questions/import?format=yaml
// The format falls back to the Content-Type (yaml when it mentions yaml, json otherwise).
func (h *AdminHandler) ImportQuestions(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "read_body_failed", err)
		return
	}
	if len(body) > maxUploadBytes {
		response.RespondAPIError(c, apierr.BadRequest("body_too_large", fmt.Errorf("body exceeds %d MB", maxUploadBytes>>20)))
		return
	}
	n, err := h.admin.ImportQuestions(c.Request.Context(), id, bodyFormat(c), body)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"imported": n})
}

// POST /api/admin/storage/cleanup?dry_run=true
func (h *AdminHandler) CleanupStorage(c *gin.Context) {
	dryRun := strings.EqualFold(c.Query("dry_run"), "true") || c.Query("dry_run") == "1"
	rep, err := h.admin.CleanupStorage(c.Request.Context(), dryRun)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, rep)
}

func bodyFormat(c *gin.Context) string {
	if f := strings.TrimSpace(c.Query("format")); f != "" {
		return f
	}
	if strings.Contains(strings.ToLower(c.ContentType()), "yaml") {
		return services.FormatYAML
	}
	return services.FormatJSON
}
