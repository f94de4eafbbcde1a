package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/auth"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/history"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

func (a *app) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Backend is running"})
}

func (a *app) handleHealth(c *gin.Context) {
	status, services := a.healthStatus(c.Request.Context())

	resp := gin.H{
		"status":      status,
		"timestamp":   time.Now().Format(time.RFC3339),
		"version":     version,
		"services":    services,
		"model":       a.scorer.Summary(),
		"metrics":     a.metrics.GetStats(),
		"compression": a.compression.GetStats(),
	}
	if a.limiter != nil {
		resp["ratelimit"] = a.limiter.GetStats()
	}

	c.JSON(http.StatusOK, resp)
}

// handlePredict scores one claim and appends it to the history. The result
// is only returned once its history row is written.
func (a *app) handlePredict(c *gin.Context) {
	var input scoring.ClaimInput
	if err := c.ShouldBindJSON(&input); err != nil {
		_ = c.Error(errors.NewValidationError("invalid claim record", err.Error()))
		return
	}
	record, err := input.Record()
	if err != nil {
		_ = c.Error(err)
		return
	}

	start := time.Now()
	result, err := a.scorer.Score(record)
	if err != nil {
		_ = c.Error(err)
		return
	}
	elapsed := time.Since(start)

	entry := history.NewEntry(record, result, time.Now().UTC())
	if err := a.history.Append(c.Request.Context(), entry); err != nil {
		a.metrics.IncrementHistoryError()
		_ = c.Error(errors.NewInternalError("failed to record prediction", err))
		return
	}

	a.metrics.RecordPrediction(result.UsedModel, result.Fraud, result.RiskScore, elapsed)
	a.logger.PredictionLogger(a.privacy.Token(record.PatientMed), result.UsedModel, result.MedicationRisk.String(),
		result.RiskScore, result.Fraud, elapsed)

	c.JSON(http.StatusOK, result)
}

func (a *app) handleHistory(c *gin.Context) {
	entries, err := a.history.List(c.Request.Context())
	if err != nil {
		_ = c.Error(errors.NewInternalError("failed to read prediction history", err))
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (a *app) handleLogin(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")

	missing := make(map[string]string)
	if email == "" {
		missing["email"] = "is required"
	}
	if password == "" {
		missing["password"] = "is required"
	}
	if len(missing) > 0 {
		_ = c.Error(errors.NewValidationErrorWithMap(missing))
		return
	}

	token, err := a.auth.Login(email, password)
	if err != nil {
		a.logger.SecurityLogger("login_failed", c.ClientIP(), c.GetHeader("User-Agent"), map[string]interface{}{
			"email": a.privacy.Token(email),
		})
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Login successful",
		"token":      token,
		"token_type": "bearer",
	})
}

func (a *app) handleMe(c *gin.Context) {
	resp := gin.H{"detail": "user info placeholder"}
	if email, ok := auth.SessionEmail(c); ok {
		resp["email"] = email
	}
	c.JSON(http.StatusOK, resp)
}
