package middleware

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/service/audit"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
	"github.com/lbarbosa/infirmary-api/pkg/metrics"
)

type AuditMiddleware struct {
	auditSvc *audit.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewAuditMiddleware(auditSvc *audit.Service, log *logger.Logger, m *metrics.Metrics) *AuditMiddleware {
	return &AuditMiddleware{
		auditSvc: auditSvc,
		logger:   log.WithComponent("audit_middleware"),
		metrics:  m,
	}
}

// DispenseAttempt records that a dispensation was requested, before the
// outcome is known. The write is best-effort: a ledger hiccup here must not
// keep medication from a patient, so failures are logged and counted, never
// surfaced.
func (m *AuditMiddleware) DispenseAttempt() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.recordAttempt(c)
		c.Next()
	}
}

func (m *AuditMiddleware) recordAttempt(c *gin.Context) {
	operator, ok := OperatorFromContext(c)
	if !ok {
		return
	}

	episodeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return
	}

	var body []byte
	if c.Request.Body != nil {
		body, _ = io.ReadAll(c.Request.Body)
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	var req model.DispenseHTTPRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return
	}

	payload := map[string]interface{}{
		"episode_id":    episodeID,
		"lot_id":        req.LotID,
		"quantity":      req.Quantity,
		"operator_name": operator.Name,
	}

	if _, err := m.auditSvc.Append(c.Request.Context(), operator.ID, model.AuditDispenseAttempt, model.AuditTargetEpisode, &episodeID, payload); err != nil {
		m.metrics.AttemptAuditDropped.Inc()
		m.logger.Error(err, "attempt audit dropped", map[string]interface{}{
			"episode_id": episodeID.String(),
			"request_id": c.GetString(ContextRequestID),
		})
	}
}
