package monitoring

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// MonitoringMiddleware records request metrics and logs every request
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.RequestStarted()

		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		// label by route template to bound cardinality
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestFinished(method, route, statusCode, duration)

		logger.RequestLogger(method, path, ip, userAgent, statusCode, duration)

		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, path, ip, statusCode)
		}

		if duration > 5*time.Second {
			logger.PerformanceLogger("slow_request", duration.Seconds(), "seconds")
		}

		if statusCode >= 500 {
			logger.SystemLogger("server_error", fmt.Sprintf("Status %d for %s %s", statusCode, method, path))
		}
	}
}

// maxPredictBody is the largest claim body considered normal
const maxPredictBody = 16 * 1024

// SecurityMonitoringMiddleware logs requests that look like probing. It never
// blocks; every matched signal is listed in one security event.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		userAgent := req.UserAgent()
		details := make(map[string]interface{})
		var signals []string

		if containsSQLInjectionPatterns(req.URL.RawQuery) {
			signals = append(signals, "potential_sql_injection")
			details["query"] = req.URL.RawQuery
		}
		if req.Method == http.MethodPost && req.URL.Path == "/predict" && req.ContentLength > maxPredictBody {
			signals = append(signals, "large_request_body")
			details["size_bytes"] = req.ContentLength
		}
		if containsSuspiciousUserAgent(userAgent) {
			signals = append(signals, "suspicious_user_agent")
		}

		if len(signals) > 0 {
			details["signals"] = signals
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), userAgent, details)
		}

		c.Next()
	}
}

var sqlInjectionPatterns = []string{
	"union select",
	"union all",
	"select * from",
	"drop table",
	"delete from",
	"';--",
	"/*",
	"*/",
	" xp_",
	" sp_",
}

// containsSQLInjectionPatterns checks the decoded form of a raw query
func containsSQLInjectionPatterns(rawQuery string) bool {
	decoded, err := url.QueryUnescape(rawQuery)
	if err != nil {
		decoded = rawQuery
	}
	q := strings.ToLower(decoded)
	for _, pattern := range sqlInjectionPatterns {
		if strings.Contains(q, pattern) {
			return true
		}
	}
	return false
}

var suspiciousAgents = []string{
	"sqlmap", "nmap", "masscan", "zmap", "dirbuster", "gobuster",
	"nikto", "acunetix", "openvas", "nessus",
}

func containsSuspiciousUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, agent := range suspiciousAgents {
		if strings.Contains(ua, agent) {
			return true
		}
	}
	return false
}
