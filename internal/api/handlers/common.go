package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	_ = c.Error(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func requireCandidateID(c *gin.Context, op string) (string, bool) {
	id := strings.TrimSpace(c.Param("candidate_id"))
	if id == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing candidate_id", nil))
		return "", false
	}
	return id, true
}
