package handler

import (
	"errors"
	"net/http"

	"bomcore/internal/apierror"
	"bomcore/internal/dto"
	"bomcore/internal/service"

	"github.com/gin-gonic/gin"
)

type ProductionHandler struct{ svc service.DeductionService }

func NewProductionHandler(svc service.DeductionService) *ProductionHandler {
	return &ProductionHandler{svc: svc}
}

// HandleEvent accepts one production-completion event and runs the deduction
// engine synchronously: the response reflects a fully committed (or fully
// rejected) transaction, never a partial one.
func (h *ProductionHandler) HandleEvent(c *gin.Context) {
	var req dto.ProductionEventRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.HandleProductionEvent(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNonPositiveQuantity), errors.Is(err, service.ErrItemInactive):
			c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		case errors.Is(err, service.ErrStockShortfall):
			c.JSON(http.StatusConflict, apierror.New(err.Error()))
		case errors.Is(err, service.ErrTransactionInProgress):
			c.JSON(http.StatusConflict, apierror.New(err.Error()))
		default:
			c.Error(err) //nolint:errcheck
		}
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// AuditTrail returns the immutable deduction log for one transaction id.
func (h *ProductionHandler) AuditTrail(c *gin.Context) {
	rows, err := h.svc.GetAuditTrail(c.Request.Context(), c.Param("tx_id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, apierror.New(err.Error()))
			return
		}
		c.Error(err) //nolint:errcheck
		return
	}
	c.JSON(http.StatusOK, rows)
}
