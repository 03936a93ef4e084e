package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/lbarbosa/infirmary-api/pkg/errors"
)

// RespondError maps an application error to its HTTP status. Unclassified
// errors are masked as 500 so internals never leak to clients.
func RespondError(c *gin.Context, err error) {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound:
		c.JSON(http.StatusNotFound, NewErrorResponse(err.Error()))
	case apperrors.ErrBadRequest:
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	case apperrors.ErrConflict:
		c.JSON(http.StatusConflict, NewErrorResponse(err.Error()))
	case apperrors.ErrUnauthorized:
		c.JSON(http.StatusUnauthorized, NewErrorResponse(err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
	}
}
