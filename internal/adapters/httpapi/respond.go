package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"fieldledger/internal/core"
	"fieldledger/pkg/domain"
)

type errorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type violationBody struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Entity   string `json:"entity,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

func violations(res core.Result) []violationBody {
	if len(res.Violations) == 0 {
		return nil
	}
	out := make([]violationBody, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, violationBody{
			Rule:     v.Rule,
			Severity: string(v.Severity),
			Message:  v.Message,
			Entity:   string(v.Entity),
			EntityID: v.EntityID,
		})
	}
	return out
}

func respond(c *gin.Context, status int, data any, res core.Result) {
	body := gin.H{"data": data}
	if vs := violations(res); vs != nil {
		body["violations"] = vs
	}
	c.JSON(status, body)
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) (int, domain.ErrorKind) {
	var notFound domain.ErrNotFound
	if errors.As(err, &notFound) {
		return http.StatusNotFound, domain.KindValidation
	}
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindValidation, domain.KindInsufficientStock:
		return http.StatusUnprocessableEntity, kind
	case domain.KindInvalidTransition, domain.KindRuleViolation:
		return http.StatusConflict, kind
	case domain.KindTransactionConflict:
		return http.StatusServiceUnavailable, kind
	}
	return http.StatusInternalServerError, domain.KindInternal
}

func (s *Server) fail(c *gin.Context, err error) {
	status, kind := statusFor(err)
	body := errorBody{Kind: string(kind), Message: err.Error()}
	var ve domain.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		body.Fields = map[string]string{ve.Field: ve.Message}
	}
	switch status {
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", "1")
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		body.Message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// bind decodes the JSON body; struct tag failures become 422 with a field map.
func (s *Server) bind(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": errorBody{
			Kind: string(domain.KindValidation), Message: "invalid request", Fields: fields,
		}})
		return false
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorBody{
		Kind: string(domain.KindValidation), Message: "malformed request: " + err.Error(),
	}})
	return false
}

func notFound(c *gin.Context, entity domain.EntityType, id string) {
	err := domain.ErrNotFound{Entity: entity, ID: id}
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": errorBody{Kind: string(domain.KindValidation), Message: err.Error()}})
}
