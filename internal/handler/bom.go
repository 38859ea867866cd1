package handler

import (
	"errors"
	"net/http"
	"strconv"

	"bomcore/internal/apierror"
	"bomcore/internal/dto"
	"bomcore/internal/repository"
	"bomcore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BOMHandler struct {
	svc       service.BOMService
	customers repository.CustomerRepository
}

func NewBOMHandler(svc service.BOMService, customers repository.CustomerRepository) *BOMHandler {
	return &BOMHandler{svc: svc, customers: customers}
}

func (h *BOMHandler) UpsertEdge(c *gin.Context) {
	var req dto.UpsertEdgeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.UpsertEdge(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *BOMHandler) BulkUpsert(c *gin.Context) {
	var req dto.BulkUpsertRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.BulkUpsert(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	// Partial success is still success: invalid rows ride along in results.
	c.JSON(http.StatusOK, resp)
}

func (h *BOMHandler) DeactivateEdge(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid edge id"))
		return
	}
	if err := h.svc.DeactivateEdge(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, apierror.New(err.Error()))
			return
		}
		c.Error(err) //nolint:errcheck
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *BOMHandler) QueryChildren(c *gin.Context) {
	parentID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid item id"))
		return
	}
	customerID, ok := h.customerScope(c)
	if !ok {
		return
	}
	resp, err := h.svc.QueryChildren(c.Request.Context(), parentID, customerID)
	if err != nil {
		c.Error(err) //nolint:errcheck
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BOMHandler) ListEntries(c *gin.Context) {
	rootID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid item id"))
		return
	}

	qty := decimal.NewFromInt(1)
	if raw := c.Query("qty"); raw != "" {
		qty, err = decimal.NewFromString(raw)
		if err != nil || !qty.IsPositive() {
			c.JSON(http.StatusBadRequest, apierror.New("qty must be a positive number"))
			return
		}
	}

	customerID, ok := h.customerScope(c)
	if !ok {
		return
	}
	filter := dto.EntryFilter{
		Search:     c.Query("q"),
		Kind:       c.Query("kind"),
		CustomerID: customerID,
	}
	if raw := c.Query("level"); raw != "" {
		level, err := strconv.Atoi(raw)
		if err != nil || level < 1 {
			c.JSON(http.StatusBadRequest, apierror.New("level must be a positive integer"))
			return
		}
		filter.Level = level
	}
	withTree := c.Query("tree") == "true"

	resp, err := h.svc.ListEntries(c.Request.Context(), rootID, qty, filter, withTree)
	if err != nil {
		if errors.Is(err, service.ErrNonPositiveQuantity) {
			c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
			return
		}
		c.Error(err) //nolint:errcheck
		return
	}
	c.JSON(http.StatusOK, resp)
}

// customerScope reads either ?customer_id= (uuid) or ?customer= (directory
// code). Codes resolve through a per-request directory lookup. Returns
// (nil, true) when no scope was given.
func (h *BOMHandler) customerScope(c *gin.Context) (*uuid.UUID, bool) {
	if raw := c.Query("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("invalid customer_id"))
			return nil, false
		}
		return &id, true
	}
	if code := c.Query("customer"); code != "" {
		lookup := service.NewDirectoryLookup(h.customers)
		id, err := lookup.Resolve(c.Request.Context(), code)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				c.JSON(http.StatusNotFound, apierror.New(err.Error()))
				return nil, false
			}
			c.Error(err) //nolint:errcheck
			return nil, false
		}
		return &id, true
	}
	return nil, true
}
