package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/0xPexy/aletta-backend/internal/analysis"
	"github.com/0xPexy/aletta-backend/internal/diagnosis"
	"github.com/0xPexy/aletta-backend/internal/store"
	"github.com/0xPexy/aletta-backend/internal/tracing"
)

type reportHandler struct {
	svc *analysis.Service
}

func newReportHandler(svc *analysis.Service) *reportHandler {
	return &reportHandler{svc: svc}
}

type analyzeResponse struct {
	Report *diagnosis.Report `json:"report"`
	Cached bool              `json:"cached"`
}

func (h *reportHandler) Analyze(c *gin.Context) {
	var req analysis.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.TxHash) == "" {
		writeAPIError(c, http.StatusBadRequest, "tx_hash is required", "")
		return
	}
	res, err := h.svc.Analyze(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, analyzeResponse{Report: res.Report, Cached: res.Cached})
}

func (h *reportHandler) GetReport(c *gin.Context) {
	report, err := h.svc.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// FindReports returns the latest report for tx_hash, or a listing filtered by
// chain and status when no hash is given.
func (h *reportHandler) FindReports(c *gin.Context) {
	txHash := strings.TrimSpace(c.Query("tx_hash"))
	chain := strings.TrimSpace(c.Query("chain"))
	if txHash != "" {
		report, err := h.svc.LatestForTx(c.Request.Context(), txHash, chain)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"report": report})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeAPIError(c, http.StatusBadRequest, "invalid limit", "")
			return
		}
		limit = n
	}
	items, err := h.svc.List(c.Request.Context(), store.ReportListParams{
		Chain:  chain,
		Status: c.Query("status"),
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// statusClientClosedRequest reports a request abandoned by its caller.
const statusClientClosedRequest = 499

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeAPIError(c *gin.Context, status int, msg, details string) {
	c.JSON(status, errorResponse{Error: msg, Details: details})
}

func writeServiceError(c *gin.Context, err error) {
	status, msg := classifyError(err)
	writeAPIError(c, status, msg, err.Error())
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, analysis.ErrNotFound), errors.Is(err, tracing.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, diagnosis.ErrMalformedTrace):
		return http.StatusUnprocessableEntity, "malformed trace"
	case errors.Is(err, tracing.ErrChainUnavailable):
		return http.StatusBadGateway, "chain unavailable"
	case errors.Is(err, analysis.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "analysis timed out"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "request canceled"
	case errors.Is(err, diagnosis.ErrInvariantViolation), errors.Is(err, diagnosis.ErrClassificationAmbiguous):
		return http.StatusInternalServerError, "internal analysis error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
