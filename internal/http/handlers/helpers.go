package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/ctxutil"
)

const maxUploadBytes = 10 << 20

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		return uuid.Nil, apierr.BadRequest("invalid_"+name, fmt.Errorf("invalid %s", name))
	}
	return id, nil
}

func currentUser(c *gin.Context) uuid.UUID {
	return ctxutil.UserID(c.Request.Context())
}

func intQuery(c *gin.Context, name string, def int) int {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func readFormFile(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, apierr.BadRequest("missing_file", fmt.Errorf("%s is required", field))
	}
	return readUpload(fh)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apierr.BadRequest("open_file_failed", err)
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return nil, apierr.BadRequest("read_file_failed", err)
	}
	if len(raw) > maxUploadBytes {
		return nil, apierr.BadRequest("file_too_large", fmt.Errorf("file exceeds %d MB", maxUploadBytes>>20))
	}
	return raw, nil
}
