package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fieldledger/internal/core"
	"fieldledger/pkg/domain"
)

type targetRequest struct {
	Kind string `json:"kind" binding:"required,target_kind"`
	ID   string `json:"id" binding:"required"`
}

type applicationRequest struct {
	Target     targetRequest   `json:"target" binding:"required"`
	ProductIDs []string        `json:"product_ids" binding:"required,min=1,dive,required"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit" binding:"required,unit"`
	Date       time.Time       `json:"date"`
	Notes      string          `json:"notes"`
}

func (r applicationRequest) input() core.ApplicationInput {
	unit, _ := domain.ParseUnit(r.Unit)
	return core.ApplicationInput{
		Target:     core.Target{Kind: domain.TargetKind(r.Target.Kind), ID: r.Target.ID},
		ProductIDs: r.ProductIDs,
		Quantity:   r.Quantity,
		Unit:       unit,
		Date:       r.Date,
		Notes:      r.Notes,
	}
}

func (s *Server) listApplications(c *gin.Context) {
	status := domain.ApplicationStatus(c.Query("status"))
	var out []core.ScheduledApplication
	for _, app := range s.svc.ListApplications() {
		if status != "" && app.Status != status {
			continue
		}
		out = append(out, app)
	}
	respond(c, http.StatusOK, out, core.Result{})
}

func (s *Server) getApplication(c *gin.Context) {
	id := c.Param("id")
	app, ok := s.svc.GetApplication(id)
	if !ok {
		notFound(c, domain.EntityApplication, id)
		return
	}
	respond(c, http.StatusOK, app, core.Result{})
}

func (s *Server) scheduleApplication(c *gin.Context) {
	var req applicationRequest
	if !s.bind(c, &req) {
		return
	}
	app, res, err := s.svc.Schedule(c.Request.Context(), req.input())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, app, res)
}

func (s *Server) editApplication(c *gin.Context) {
	var req applicationRequest
	if !s.bind(c, &req) {
		return
	}
	app, res, err := s.svc.EditApplication(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, app, res)
}

func (s *Server) cancelApplication(c *gin.Context) {
	res, err := s.svc.CancelApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"cancelled": c.Param("id")}, res)
}

func (s *Server) completeApplication(c *gin.Context) {
	app, res, err := s.svc.CompleteApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, app, res)
}

func (s *Server) refundApplication(c *gin.Context) {
	app, res, err := s.svc.RefundApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, app, res)
}
