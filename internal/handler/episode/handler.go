package episode

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/handler"
	"github.com/lbarbosa/infirmary-api/internal/middleware"
	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/service/episode"
)

type Handler struct {
	service *episode.Service
}

func NewHandler(service *episode.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/episodes", h.OpenEpisode)
	r.GET("/episodes/:id", h.GetEpisode)
	r.POST("/episodes/:id/close", h.CloseEpisode)
	r.GET("/episodes/:id/dispensations", h.ListDispensations)
	r.GET("/patients/:id/episodes", h.ListPatientEpisodes)
}

func (h *Handler) OpenEpisode(c *gin.Context) {
	operator, ok := middleware.OperatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("operator not authenticated"))
		return
	}

	var req model.OpenEpisodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	ep, err := h.service.Open(c.Request.Context(), operator, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(ep))
}

func (h *Handler) GetEpisode(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid episode ID"))
		return
	}

	ep, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(ep))
}

func (h *Handler) CloseEpisode(c *gin.Context) {
	operator, ok := middleware.OperatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("operator not authenticated"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid episode ID"))
		return
	}

	var req model.CloseEpisodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	ep, err := h.service.Close(c.Request.Context(), operator, id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(ep))
}

func (h *Handler) ListDispensations(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid episode ID"))
		return
	}

	records, err := h.service.Dispensations(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
}

func (h *Handler) ListPatientEpisodes(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	episodes, err := h.service.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(episodes))
}
