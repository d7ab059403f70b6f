package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vehicle-lookup-api/internal/access"
	"vehicle-lookup-api/internal/audit"
	"vehicle-lookup-api/internal/database"
	"vehicle-lookup-api/internal/logging"
)

// Error codes of the uniform-200 lookup contract
const (
	CodeUnauthorized = "UNAUTHORIZED_ACCESS"
	CodeServerError  = "SERVER_ERROR"
)

const (
	msgUnauthorized = "Access denied. Please contact support for assistance."
	msgServerError  = "An error occurred while processing your request."
)

// failure answers a lookup with HTTP 200 and success=false
func failure(c *gin.Context, code, message string) {
	c.JSON(http.StatusOK, gin.H{
		"success": false,
		"message": message,
		"code":    code,
	})
}

// handleLookup serves GET /api/reg. Every outcome is answered with HTTP 200.
func (s *Server) handleLookup(c *gin.Context) {
	started := time.Now()
	log := logging.FromContext(c.Request.Context())

	req := access.Request{
		RegNumber:  c.Query("regNumber"),
		VIN:        c.Query("vin"),
		RegType:    c.Query("regType"),
		PromoToken: c.Query("promoToken"),
		PayToken:   c.Query("payToken"),
	}

	entry := audit.Entry{
		QueryType:  audit.QueryCombo,
		Note:       req.RegNumber + req.VIN,
		RegType:    req.RegType,
		IP:         c.ClientIP(),
		Started:    started,
		PromoToken: req.PromoToken,
	}

	resp, err := s.lookup.Lookup(c.Request.Context(), req)
	if resp != nil && resp.Grant != nil {
		entry.Note = resp.Grant.RegNumber + resp.Grant.VIN
		entry.RegType = resp.Grant.RegType
	}

	switch {
	case errors.Is(err, access.ErrUnauthorized):
		failure(c, CodeUnauthorized, msgUnauthorized)
		log.Warn().Str("client_ip", entry.IP).Str("note", entry.Note).Msg("Unauthorized access attempt")
		s.eventBus.PublishLookupDenied(entry.Note, entry.IP)
		entry.Status = audit.StatusUnauthorized

	case err != nil:
		failure(c, CodeServerError, msgServerError)
		log.Error().Err(err).Str("note", entry.Note).Msg("Lookup failed")
		entry.Status = audit.StatusError

	default:
		// registry text goes out as received
		c.PureJSON(http.StatusOK, resp.Data)
		entry.Status = resp.Status
	}

	s.recorder.Record(entry)
}

// handleFindPayment serves GET /api/paymentfind/:id
func (s *Server) handleFindPayment(c *gin.Context) {
	started := time.Now()
	id := c.Param("id")
	log := logging.FromContext(c.Request.Context())

	entry := audit.Entry{
		QueryType: audit.QueryFindPayment,
		Note:      id,
		IP:        c.ClientIP(),
		Started:   started,
	}

	payment, err := s.store.FindPaymentByTransactionID(c.Request.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.Status(http.StatusNotFound)
		entry.Status = audit.StatusNotFound

	case err != nil:
		log.Error().Err(err).Str("transaction_id", id).Msg("Payment lookup failed")
		c.String(http.StatusInternalServerError, "Internal Server Error")
		entry.Status = audit.StatusStoreError

	default:
		c.JSON(http.StatusOK, payment)
		entry.Status = audit.StatusOK
	}

	s.recorder.Record(entry)
}
