package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/waifu-verifier-backend/internal/http/response"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

type CatalogHandler struct {
	catalog services.CatalogService
}

func NewCatalogHandler(catalog services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// GET /api/characters
func (h *CatalogHandler) ListCharacters(c *gin.Context) {
	rows, err := h.catalog.ListCharacters(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"characters": rows})
}

// GET /api/characters/:id
func (h *CatalogHandler) GetCharacter(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	detail, err := h.catalog.GetCharacter(c.Request.Context(), id, currentUser(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"character": detail})
}

// GET /api/characters/:id/result
func (h *CatalogHandler) GetResult(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	r, err := h.catalog.GetResult(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": r})
}

// GET /api/config/:key
func (h *CatalogHandler) GetConfig(c *gin.Context) {
	cfg, err := h.catalog.GetConfig(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"key": cfg.Key, "value": cfg.Value})
}
