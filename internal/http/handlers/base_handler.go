// README: Base handler utilities (envelope helpers, error mapping, query parsing).
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domainerr"
	"dispatch/internal/http/middleware"
	"dispatch/internal/logger"
	"dispatch/internal/pagination"
	"dispatch/internal/types"
)

// envelope is the shape of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type errorData struct {
	Code string `json:"code"`
}

type pageData struct {
	Items      any             `json:"items"`
	Pagination pagination.Meta `json:"pagination"`
}

const internalMessage = "internal error, try again"

func writeJSON(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, envelope{Success: status < 400, Message: msg, Data: data})
}

func writeOK(c *gin.Context, msg string, data any) {
	writeJSON(c, http.StatusOK, msg, data)
}

func writePage(c *gin.Context, msg string, items any, p pagination.Page, total int64) {
	writeOK(c, msg, pageData{Items: items, Pagination: pagination.NewMeta(p, total)})
}

func writeError(c *gin.Context, status int, code, msg string) {
	writeJSON(c, status, msg, errorData{Code: code})
}

// writeDomainError maps err to a status. 4xx carry the error text; 5xx are logged
// with the operation and entity and answered generically.
func writeDomainError(c *gin.Context, log *slog.Logger, op string, entityID types.ID, err error) {
	code := domainerr.Code(err)
	switch {
	case errors.Is(err, domainerr.ErrStoreUnavailable):
	case errors.Is(err, domainerr.ErrNotFound):
		writeError(c, http.StatusNotFound, code, err.Error())
		return
	case errors.Is(err, domainerr.ErrConcurrentModification):
		writeError(c, http.StatusConflict, code, err.Error())
		return
	case errors.Is(err, domainerr.ErrValidation),
		errors.Is(err, domainerr.ErrInvalidTransition),
		errors.Is(err, domainerr.ErrInvalidDriver),
		errors.Is(err, domainerr.ErrAlreadyProcessed):
		writeError(c, http.StatusBadRequest, code, err.Error())
		return
	}
	logger.LogErrorWithCode(c.Request.Context(), log, err, "request failed",
		"op", op, "entity_id", string(entityID), "caller_uid", middleware.CallerUID(c))
	writeError(c, http.StatusInternalServerError, code, internalMessage)
}

func writeValidation(c *gin.Context, msg string) {
	writeError(c, http.StatusBadRequest, domainerr.Code(domainerr.ErrValidation), msg)
}

// pathID reads a non-empty :id param.
func pathID(c *gin.Context) (types.ID, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > 64 {
		writeValidation(c, "invalid id")
		return "", false
	}
	return types.ID(id), true
}

func parsePage(c *gin.Context, p pagination.Parser) (pagination.Page, bool) {
	page, err := p.Parse(c)
	if err != nil {
		writeValidation(c, "page and per_page must be positive integers")
		return pagination.Page{}, false
	}
	return page, true
}

func actor(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}
