package inventory

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/handler"
	"github.com/lbarbosa/infirmary-api/internal/middleware"
	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/service/inventory"
)

type Handler struct {
	service *inventory.Service
}

func NewHandler(service *inventory.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	meds := r.Group("/medications")
	{
		meds.POST("", h.CreateMedication)
		meds.GET("", h.ListMedications)
		meds.GET("/:id", h.GetMedication)
		meds.POST("/:id/lots", h.ReceiveLot)
		meds.GET("/:id/lots", h.ListLots)
		meds.GET("/:id/stock", h.GetStock)
		meds.GET("/:id/best-lot", h.BestLot)
	}
	r.GET("/stock-alerts", h.ListAlerts)
}

func (h *Handler) CreateMedication(c *gin.Context) {
	operator, ok := middleware.OperatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("operator not authenticated"))
		return
	}

	var req model.CreateMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	med, err := h.service.CreateMedication(c.Request.Context(), operator, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(med))
}

func (h *Handler) ListMedications(c *gin.Context) {
	meds, err := h.service.ListMedications(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(meds))
}

func (h *Handler) GetMedication(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid medication ID"))
		return
	}

	med, err := h.service.GetMedication(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(med))
}

func (h *Handler) ReceiveLot(c *gin.Context) {
	operator, ok := middleware.OperatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("operator not authenticated"))
		return
	}

	medicationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid medication ID"))
		return
	}

	var req model.ReceiveLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	lot, err := h.service.ReceiveLot(c.Request.Context(), operator, medicationID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(lot))
}

func (h *Handler) ListLots(c *gin.Context) {
	medicationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid medication ID"))
		return
	}

	lots, err := h.service.ListLots(c.Request.Context(), medicationID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(lots))
}

func (h *Handler) GetStock(c *gin.Context) {
	medicationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid medication ID"))
		return
	}

	total, err := h.service.TotalStock(c.Request.Context(), medicationID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"total_stock": total}))
}

// BestLot answers "which lot should I pull from the shelf", applying the
// same first-expired-first-out rule the dispensation path uses.
func (h *Handler) BestLot(c *gin.Context) {
	medicationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid medication ID"))
		return
	}

	quantity := 1
	if q := c.Query("quantity"); q != "" {
		quantity, err = strconv.Atoi(q)
		if err != nil || quantity <= 0 {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid quantity"))
			return
		}
	}

	lot, err := h.service.BestLot(c.Request.Context(), medicationID, quantity)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(lot))
}

func (h *Handler) ListAlerts(c *gin.Context) {
	alerts, err := h.service.Alerts(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(alerts))
}
