package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/waifu-verifier-backend/internal/http/response"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

type AppraisalHandler struct {
	log       *logger.Logger
	appraisal services.AppraisalService
}

func NewAppraisalHandler(log *logger.Logger, appraisal services.AppraisalService) *AppraisalHandler {
	return &AppraisalHandler{log: log.With("handler", "AppraisalHandler"), appraisal: appraisal}
}

// POST /api/analyze-collection (multipart/form-data)
// fields: image, waifuName, waifuId
// Business rejections are 200 with success=false; transport failures carry their status.
func (h *AppraisalHandler) Analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+(1<<20))
	var raw []byte
	if fh, err := c.FormFile("image"); err == nil {
		raw, err = readUpload(fh)
		if err != nil {
			response.RespondLegacyError(c, err)
			return
		}
	} else if err != http.ErrMissingFile {
		response.RespondLegacyError(c, apierr.BadRequest("invalid_form", err))
		return
	}

	res, err := h.appraisal.Appraise(c.Request.Context(), currentUser(c), services.AppraisalRequest{
		Image:         raw,
		CharacterID:   c.PostForm("waifuId"),
		CharacterName: c.PostForm("waifuName"),
	})
	if err != nil {
		if status, _ := apierr.StatusOf(err); status >= http.StatusInternalServerError {
			h.log.Error("Appraisal failed", "error", err)
		}
		response.RespondLegacyError(c, err)
		return
	}
	response.RespondOK(c, res)
}
