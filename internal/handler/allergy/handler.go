package allergy

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/handler"
	"github.com/lbarbosa/infirmary-api/internal/middleware"
	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/service/allergy"
)

type Handler struct {
	service *allergy.Service
}

func NewHandler(service *allergy.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/patients/:id/allergies", h.CreateAllergy)
	r.GET("/patients/:id/allergies", h.ListAllergies)
	r.GET("/patients/:id/allergy-check", h.CheckIngredient)
	r.DELETE("/allergies/:id", h.DeleteAllergy)
}

func (h *Handler) CreateAllergy(c *gin.Context) {
	operator, ok := middleware.OperatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("operator not authenticated"))
		return
	}

	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	var req model.CreateAllergyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	record, err := h.service.Create(c.Request.Context(), operator, patientID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(record))
}

func (h *Handler) ListAllergies(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	records, err := h.service.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
}

// CheckIngredient runs the cross-check speculatively, without dispensing.
// Nurses use it to answer "could I give this?" before opening an episode.
func (h *Handler) CheckIngredient(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	ingredient := c.Query("ingredient")
	if ingredient == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("missing ingredient query parameter"))
		return
	}

	result, err := h.service.Check(c.Request.Context(), patientID, ingredient)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) DeleteAllergy(c *gin.Context) {
	operator, ok := middleware.OperatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("operator not authenticated"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid allergy ID"))
		return
	}

	if err := h.service.Delete(c.Request.Context(), operator, id); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
