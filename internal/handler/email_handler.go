// Package handler exposes the engine over a thin HTTP surface, in the
// teacher's gin-handler idiom. It is demonstration plumbing, not part of
// the engine's core contract.
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"emailsleuth/internal/contact"
	"emailsleuth/internal/engine"
	"emailsleuth/internal/score"
	"emailsleuth/internal/types"
)

// FindEmailRequest is the input record shape from spec §6: string-or-null
// name/domain fields, with company_domain accepted as a domain alias.
type FindEmailRequest struct {
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	FullName      *string `json:"full_name"`
	Domain        *string `json:"domain"`
	CompanyDomain *string `json:"company_domain"`
}

// FindEmailResponse is the output record from spec §6: the input merged
// with discovery results and status flags.
type FindEmailResponse struct {
	FindEmailRequest
	EmailDiscoveryResults   *types.EmailResult `json:"email_discovery_results,omitempty"`
	Email                   *string            `json:"email,omitempty"`
	EmailConfidence         uint8              `json:"email_confidence"`
	EmailVerificationMethod string             `json:"email_verification_method"`
	EmailAlternatives       []string           `json:"email_alternatives,omitempty"`
	EmailFindingSkipped     bool               `json:"email_finding_skipped"`
	EmailFindingReason      string             `json:"email_finding_reason,omitempty"`
	EmailVerificationFailed bool               `json:"email_verification_failed"`
	EmailFindingError       string             `json:"email_finding_error,omitempty"`
}

// EmailHandler wires the engine to gin.
type EmailHandler struct {
	engine   *engine.Engine
	scoreCfg score.Config
	logger   *zap.Logger
}

// NewEmailHandler builds an EmailHandler. scoreCfg is only used for its
// MaxAlternatives bound when building the alternatives list.
func NewEmailHandler(eng *engine.Engine, scoreCfg score.Config, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{engine: eng, scoreCfg: scoreCfg, logger: logger}
}

// FindEmail handles POST /api/v1/find-email.
func (h *EmailHandler) FindEmail(c *gin.Context) {
	var req FindEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	domain := req.Domain
	if domain == nil {
		domain = req.CompanyDomain
	}

	raw := types.Contact{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		FullName:  req.FullName,
		Domain:    domain,
	}

	vc, err := contact.Validate(raw)
	if err != nil {
		c.JSON(http.StatusOK, FindEmailResponse{
			FindEmailRequest:    req,
			EmailFindingSkipped: true,
			EmailFindingReason:  err.Error(),
		})
		return
	}

	result, err := h.engine.FindEmail(c.Request.Context(), vc)
	if err != nil {
		h.logger.Error("core processing error", zap.Error(err))
		c.JSON(http.StatusOK, FindEmailResponse{
			FindEmailRequest:  req,
			EmailFindingError: err.Error(),
		})
		return
	}

	alternatives := score.Alternatives(result, h.scoreCfg)
	altEmails := make([]string, 0, len(alternatives))
	for _, a := range alternatives {
		altEmails = append(altEmails, a.Email)
	}

	verificationFailed := result.MostLikelyEmail == nil && len(result.FoundEmails) > 0

	c.JSON(http.StatusOK, FindEmailResponse{
		FindEmailRequest:        req,
		EmailDiscoveryResults:   &result,
		Email:                   result.MostLikelyEmail,
		EmailConfidence:         result.ConfidenceScore,
		EmailVerificationMethod: strings.Join(result.MethodsUsed, ","),
		EmailAlternatives:       altEmails,
		EmailVerificationFailed: verificationFailed,
	})
}

// HealthCheck handles GET /health.
func (h *EmailHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "email-sleuth"})
}
