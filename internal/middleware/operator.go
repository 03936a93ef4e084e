package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lbarbosa/infirmary-api/internal/handler"
	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/pkg/auth"
)

const contextOperator = "operator"

type OperatorMiddleware struct {
	verifier *auth.TokenVerifier
}

func NewOperatorMiddleware(verifier *auth.TokenVerifier) *OperatorMiddleware {
	return &OperatorMiddleware{verifier: verifier}
}

// Authenticate verifies the bearer token and stores the acting operator in
// the request context. Every clinical route requires an identified operator.
func (m *OperatorMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			return
		}

		operatorID, name, err := m.verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			return
		}

		c.Set(contextOperator, model.Operator{ID: operatorID, Name: name})
		c.Next()
	}
}

// OperatorFromContext returns the authenticated operator. The second return
// is false when Authenticate did not run on the route.
func OperatorFromContext(c *gin.Context) (model.Operator, bool) {
	v, ok := c.Get(contextOperator)
	if !ok {
		return model.Operator{}, false
	}
	op, ok := v.(model.Operator)
	return op, ok
}
