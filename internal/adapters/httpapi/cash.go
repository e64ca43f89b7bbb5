package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fieldledger/internal/core"
	"fieldledger/pkg/domain"
)

const dateLayout = "2006-01-02"

type cashRequest struct {
	Description string          `json:"description" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type" binding:"required,cash_type"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
}

// period reads from/to query dates; to is exclusive.
func period(c *gin.Context) (core.CashPeriod, error) {
	var p core.CashPeriod
	for _, q := range []struct {
		name string
		dst  *time.Time
	}{{"from", &p.From}, {"to", &p.To}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return core.CashPeriod{}, domain.ValidationError{Field: q.name, Message: "expected YYYY-MM-DD"}
		}
		*q.dst = t
	}
	return p, nil
}

func (s *Server) listCash(c *gin.Context) {
	p, err := period(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	txns, err := s.svc.CashTransactionsIn(c.Request.Context(), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, txns, core.Result{})
}

func (s *Server) recordCash(c *gin.Context) {
	var req cashRequest
	if !s.bind(c, &req) {
		return
	}
	txn, res, err := s.svc.RecordCashTransaction(c.Request.Context(), core.CashInput{
		Description: req.Description,
		Amount:      req.Amount,
		Type:        domain.CashType(req.Type),
		Category:    req.Category,
		Date:        req.Date,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, txn, res)
}

func (s *Server) cashSummary(c *gin.Context) {
	p, err := period(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	sum, err := s.svc.CashBookSummary(c.Request.Context(), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"income":  sum.Income,
		"expense": sum.Expense,
		"balance": sum.Balance,
		"count":   sum.Count,
	}, core.Result{})
}

func (s *Server) exportCash(c *gin.Context) {
	if s.exporter == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": errorBody{Kind: string(domain.KindInternal), Message: "export not configured"}})
		return
	}
	p, err := period(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	info, err := s.exporter.Export(c.Request.Context(), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, info, core.Result{})
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
