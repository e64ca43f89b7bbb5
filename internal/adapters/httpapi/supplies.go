package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fieldledger/internal/core"
	"fieldledger/pkg/domain"
)

type purchaseRequest struct {
	Name        string          `json:"name" binding:"required"`
	Category    string          `json:"category" binding:"omitempty,supply_category"`
	Unit        string          `json:"unit" binding:"required,unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	Cost        decimal.Decimal `json:"cost"`
	PurchasedAt time.Time       `json:"purchased_at"`
	Notes       string          `json:"notes"`
}

type supplyEditRequest struct {
	Name     *string          `json:"name" binding:"omitempty,min=1"`
	Category *string          `json:"category" binding:"omitempty,supply_category"`
	Unit     *string          `json:"unit" binding:"omitempty,unit"`
	Quantity *decimal.Decimal `json:"quantity"`
	Cost     *decimal.Decimal `json:"cost"`
	Notes    *string          `json:"notes"`
}

func (s *Server) listSupplies(c *gin.Context) {
	query, category := c.Query("q"), domain.SupplyCategory(c.Query("category"))
	if s.cache != nil {
		if err := s.cache.Sync(c.Request.Context()); err != nil {
			s.fail(c, err)
			return
		}
	}
	if raw := c.Query("low_stock"); raw != "" {
		threshold, err := decimal.NewFromString(raw)
		if err != nil {
			s.fail(c, domain.ValidationError{Field: "low_stock", Message: "must be a number"})
			return
		}
		if s.cache != nil {
			respond(c, http.StatusOK, s.cache.LowStock(threshold), core.Result{})
			return
		}
		var low []core.Supply
		for _, sup := range s.svc.ListSupplies() {
			if sup.Available().LessThanOrEqual(threshold) {
				low = append(low, sup)
			}
		}
		respond(c, http.StatusOK, low, core.Result{})
		return
	}
	if s.cache != nil {
		if query != "" || category != "" {
			respond(c, http.StatusOK, s.cache.Search(query, category), core.Result{})
			return
		}
		respond(c, http.StatusOK, s.cache.List(), core.Result{})
		return
	}
	var out []core.Supply
	for _, sup := range s.svc.ListSupplies() {
		if category != "" && sup.Category != category {
			continue
		}
		if query != "" && !containsFold(sup.Name, query) {
			continue
		}
		out = append(out, sup)
	}
	respond(c, http.StatusOK, out, core.Result{})
}

func (s *Server) getSupply(c *gin.Context) {
	id := c.Param("id")
	get := s.svc.GetSupply
	if s.cache != nil {
		if err := s.cache.Sync(c.Request.Context()); err != nil {
			s.fail(c, err)
			return
		}
		get = s.cache.Get
	}
	sup, ok := get(id)
	if !ok {
		notFound(c, domain.EntitySupply, id)
		return
	}
	respond(c, http.StatusOK, sup, core.Result{})
}

func (s *Server) recordPurchase(c *gin.Context) {
	var req purchaseRequest
	if !s.bind(c, &req) {
		return
	}
	unit, _ := domain.ParseUnit(req.Unit)
	sup, res, err := s.svc.RecordPurchase(c.Request.Context(), core.PurchaseInput{
		Name:        req.Name,
		Category:    domain.SupplyCategory(req.Category),
		Unit:        unit,
		Quantity:    req.Quantity,
		Cost:        req.Cost,
		PurchasedAt: req.PurchasedAt,
		Notes:       req.Notes,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, sup, res)
}

func (s *Server) editSupply(c *gin.Context) {
	var req supplyEditRequest
	if !s.bind(c, &req) {
		return
	}
	edit := core.SupplyEdit{Name: req.Name, Quantity: req.Quantity, Cost: req.Cost, Notes: req.Notes}
	if req.Category != nil {
		cat := domain.SupplyCategory(*req.Category)
		edit.Category = &cat
	}
	if req.Unit != nil {
		unit, _ := domain.ParseUnit(*req.Unit)
		edit.Unit = &unit
	}
	sup, res, err := s.svc.EditSupply(c.Request.Context(), c.Param("id"), edit)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, sup, res)
}

func (s *Server) deleteSupply(c *gin.Context) {
	res, err := s.svc.DeleteSupply(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": c.Param("id")}, res)
}

func (s *Server) availableStock(c *gin.Context) {
	id := c.Param("id")
	available, err := s.svc.AvailableStock(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"supply_id": id, "available": available}, core.Result{})
}
