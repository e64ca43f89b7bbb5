// Package httpapi exposes the ledger service over HTTP with gin.
package httpapi

import (
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"fieldledger/internal/adapters/cashbook"
	"fieldledger/internal/core"
	"fieldledger/internal/readmodel"
	"fieldledger/pkg/domain"
)

// Server holds the handlers' dependencies.
type Server struct {
	svc      *core.Service
	cache    *readmodel.SupplyCache
	exporter *cashbook.Exporter
	metrics  http.Handler
	logger   core.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSupplyCache serves supply reads from the read model.
func WithSupplyCache(cache *readmodel.SupplyCache) Option {
	return func(s *Server) { s.cache = cache }
}

// WithExporter enables POST /cash/export.
func WithExporter(exp *cashbook.Exporter) Option {
	return func(s *Server) { s.exporter = exp }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns a server for svc.
func New(svc *core.Service, opts ...Option) *Server {
	s := &Server{svc: svc, logger: nopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var registerOnce sync.Once

func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("unit", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseUnit(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("supply_category", func(fl validator.FieldLevel) bool {
			return domain.SupplyCategory(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("target_kind", func(fl validator.FieldLevel) bool {
			k := domain.TargetKind(fl.Field().String())
			return k == domain.TargetPlanting || k == domain.TargetAnimalGroup
		})
		_ = v.RegisterValidation("cash_type", func(fl validator.FieldLevel) bool {
			t := domain.CashType(fl.Field().String())
			return t == domain.CashIncome || t == domain.CashExpense
		})
	})
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	registerValidators()
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api/v1")

	supplies := api.Group("/supplies")
	supplies.GET("", s.listSupplies)
	supplies.POST("", s.recordPurchase)
	supplies.GET("/:id", s.getSupply)
	supplies.PATCH("/:id", s.editSupply)
	supplies.DELETE("/:id", s.deleteSupply)
	supplies.GET("/:id/available", s.availableStock)

	apps := api.Group("/applications")
	apps.GET("", s.listApplications)
	apps.POST("", s.scheduleApplication)
	apps.GET("/:id", s.getApplication)
	apps.PUT("/:id", s.editApplication)
	apps.DELETE("/:id", s.cancelApplication)
	apps.POST("/:id/complete", s.completeApplication)
	apps.POST("/:id/refund", s.refundApplication)

	plantings := api.Group("/plantings")
	plantings.GET("", s.listPlantings)
	plantings.POST("", s.createPlanting)
	plantings.GET("/:id", s.getPlanting)
	plantings.DELETE("/:id", s.deletePlanting)
	plantings.POST("/:id/consumptions", s.logConsumption)
	plantings.DELETE("/:id/consumptions/:entryId", s.deleteConsumption)

	groups := api.Group("/animal-groups")
	groups.GET("", s.listAnimalGroups)
	groups.POST("", s.createAnimalGroup)
	groups.DELETE("/:id", s.deleteAnimalGroup)

	cash := api.Group("/cash")
	cash.GET("", s.listCash)
	cash.POST("", s.recordCash)
	cash.GET("/summary", s.cashSummary)
	cash.POST("/export", s.exportCash)

	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
