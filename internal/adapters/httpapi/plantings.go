package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fieldledger/internal/core"
	"fieldledger/pkg/domain"
)

type seedUsageRequest struct {
	SupplyID string          `json:"supply_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit" binding:"required,unit"`
}

type plantingRequest struct {
	Name      string             `json:"name" binding:"required"`
	Crop      string             `json:"crop" binding:"required"`
	Field     string             `json:"field"`
	PlantedAt time.Time          `json:"planted_at"`
	SeedUsage []seedUsageRequest `json:"seed_usage" binding:"dive"`
}

type consumptionRequest struct {
	SupplyID    string          `json:"supply_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit" binding:"required,unit"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

type animalGroupRequest struct {
	Name      string `json:"name" binding:"required"`
	Species   string `json:"species" binding:"required"`
	HeadCount int    `json:"head_count" binding:"gte=0"`
}

func (s *Server) listPlantings(c *gin.Context) {
	respond(c, http.StatusOK, s.svc.ListPlantings(), core.Result{})
}

func (s *Server) getPlanting(c *gin.Context) {
	id := c.Param("id")
	p, ok := s.svc.GetPlanting(id)
	if !ok {
		notFound(c, domain.EntityPlanting, id)
		return
	}
	respond(c, http.StatusOK, p, core.Result{})
}

func (s *Server) createPlanting(c *gin.Context) {
	var req plantingRequest
	if !s.bind(c, &req) {
		return
	}
	in := core.PlantingInput{Name: req.Name, Crop: req.Crop, Field: req.Field, PlantedAt: req.PlantedAt}
	for _, su := range req.SeedUsage {
		unit, _ := domain.ParseUnit(su.Unit)
		in.SeedUsage = append(in.SeedUsage, core.SeedUsageInput{SupplyID: su.SupplyID, Quantity: su.Quantity, Unit: unit})
	}
	p, res, err := s.svc.CreatePlanting(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, p, res)
}

func (s *Server) deletePlanting(c *gin.Context) {
	res, err := s.svc.DeletePlanting(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": c.Param("id")}, res)
}

func (s *Server) logConsumption(c *gin.Context) {
	var req consumptionRequest
	if !s.bind(c, &req) {
		return
	}
	unit, _ := domain.ParseUnit(req.Unit)
	entry, res, err := s.svc.LogConsumption(c.Request.Context(), core.ConsumptionInput{
		PlantingID:  c.Param("id"),
		SupplyID:    req.SupplyID,
		Quantity:    req.Quantity,
		Unit:        unit,
		Date:        req.Date,
		Description: req.Description,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, entry, res)
}

func (s *Server) deleteConsumption(c *gin.Context) {
	res, err := s.svc.DeleteConsumption(c.Request.Context(), c.Param("id"), c.Param("entryId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": c.Param("entryId")}, res)
}

func (s *Server) listAnimalGroups(c *gin.Context) {
	respond(c, http.StatusOK, s.svc.ListAnimalGroups(), core.Result{})
}

func (s *Server) createAnimalGroup(c *gin.Context) {
	var req animalGroupRequest
	if !s.bind(c, &req) {
		return
	}
	g, res, err := s.svc.CreateAnimalGroup(c.Request.Context(), core.AnimalGroupInput{
		Name: req.Name, Species: req.Species, HeadCount: req.HeadCount,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, g, res)
}

func (s *Server) deleteAnimalGroup(c *gin.Context) {
	res, err := s.svc.DeleteAnimalGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": c.Param("id")}, res)
}
