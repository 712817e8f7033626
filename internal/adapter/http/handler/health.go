package handler

import (
	"net/http"

	"agentpay/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// HealthCheck handles GET /health. Every checker is pinged; the privacy
// issuer is reported but a degraded issuer does not fail the check, since
// issuance falls back locally.
func HealthCheck(issuer ports.PrivacyTokenIssuer, checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		body := gin.H{
			"status":       status,
			"dependencies": deps,
		}
		if issuer != nil {
			body["privacy"] = gin.H{
				"mode":      issuer.Mode(),
				"degraded":  issuer.Degraded(),
				"fallbacks": issuer.Fallbacks(),
			}
		}
		c.JSON(httpCode, body)
	}
}
