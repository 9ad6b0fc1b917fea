package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/certification-service/internal/services"
	"github.com/SAP-F-2025/certification-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type CertificateHandler struct {
	BaseHandler
	issuer *services.CertificateIssuer
}

func NewCertificateHandler(issuer *services.CertificateIssuer, logger utils.Logger) *CertificateHandler {
	return &CertificateHandler{
		BaseHandler: NewBaseHandler(logger),
		issuer:      issuer,
	}
}

// VerifyCertificate is public; expiry is judged at request time.
// @Router /certificates/verify/{number} [get]
func (h *CertificateHandler) VerifyCertificate(c *gin.Context) {
	number := ParseStringIDParam(c, "number")
	if number == "" {
		return
	}

	result, err := h.issuer.Verify(requestContext(c), number)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogDebug(c, "Certificate verified", "certificate_number", number, "valid", result.Valid)
	c.JSON(http.StatusOK, result)
}
