package audit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/handler"
	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/service/audit"
)

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit", h.ListEntries)
}

// ListEntries reads the ledger. There is deliberately no write route here;
// entries are appended by the services that perform the audited action.
func (h *Handler) ListEntries(c *gin.Context) {
	filter := model.AuditFilter{
		ActionKind:  c.Query("action_kind"),
		TargetTable: c.Query("target_table"),
	}

	if v := c.Query("actor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid actor_id"))
			return
		}
		filter.ActorID = &id
	}

	if v := c.Query("target_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid target_id"))
			return
		}
		filter.TargetID = &id
	}

	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid limit"))
			return
		}
		filter.Limit = limit
	}

	entries, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}
