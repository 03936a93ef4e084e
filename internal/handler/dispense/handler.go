package dispense

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/handler"
	"github.com/lbarbosa/infirmary-api/internal/middleware"
	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/service/dispense"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
)

type Handler struct {
	service *dispense.Service
	auditMW *middleware.AuditMiddleware
	logger  *logger.Logger
}

func NewHandler(service *dispense.Service, auditMW *middleware.AuditMiddleware, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		auditMW: auditMW,
		logger:  log.WithComponent("dispense_handler"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/episodes/:id/dispensations", h.auditMW.DispenseAttempt(), h.Dispense)
}

func (h *Handler) Dispense(c *gin.Context) {
	operator, ok := middleware.OperatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("operator not authenticated"))
		return
	}

	episodeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid episode ID"))
		return
	}

	var req model.DispenseHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	outcome := h.service.Dispense(c.Request.Context(), dispense.Request{
		EpisodeID:          episodeID,
		LotID:              req.LotID,
		Quantity:           req.Quantity,
		DosageInstructions: req.DosageInstructions,
		Operator:           operator,
	})

	c.JSON(statusFor(outcome, h, c), responseFor(outcome))
}

// statusFor maps each outcome kind to a status code. Blocked and
// insufficient stock are conflicts with current clinical state; an expired
// lot or closed episode means the request itself names an unusable target.
func statusFor(o *dispense.Outcome, h *Handler, c *gin.Context) int {
	switch o.Kind {
	case dispense.KindSuccess:
		return http.StatusCreated
	case dispense.KindBlocked, dispense.KindStockInsufficient:
		return http.StatusConflict
	case dispense.KindBatchExpired, dispense.KindEpisodeClosed:
		return http.StatusBadRequest
	case dispense.KindNotFound:
		return http.StatusNotFound
	default:
		h.logger.Error(o.Err(), "dispensation failed", map[string]interface{}{
			"request_id": c.GetString(middleware.ContextRequestID),
		})
		return http.StatusInternalServerError
	}
}

func responseFor(o *dispense.Outcome) *handler.Response {
	switch o.Kind {
	case dispense.KindSuccess:
		return handler.NewSuccessResponse(o)
	case dispense.KindBlocked:
		resp := handler.NewErrorResponse("dispensation blocked: patient is allergic to a medication ingredient")
		resp.Data = o
		return resp
	case dispense.KindStockInsufficient:
		return handler.NewErrorResponse(fmt.Sprintf("insufficient stock: requested %d, available %d", o.Requested, o.Available))
	case dispense.KindBatchExpired:
		return handler.NewErrorResponse("lot is expired")
	case dispense.KindEpisodeClosed:
		return handler.NewErrorResponse("episode is not open")
	case dispense.KindNotFound:
		return handler.NewErrorResponse("episode or lot not found")
	default:
		return handler.NewErrorResponse("internal server error")
	}
}
