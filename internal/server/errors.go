package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/marketplace"
)

const kindRateLimited = "rate_limited"

type errorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func statusFor(kind marketplace.Kind) int {
	switch kind {
	case marketplace.KindValidation:
		return http.StatusBadRequest
	case marketplace.KindNotFound:
		return http.StatusNotFound
	case marketplace.KindAuthorization:
		return http.StatusForbidden
	case marketplace.KindConflict:
		return http.StatusConflict
	case marketplace.KindState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	var mErr *marketplace.Error
	kind := marketplace.KindOf(err)
	body := errorBody{Kind: string(kind), Message: err.Error()}
	if errors.As(err, &mErr) {
		body.Message = mErr.Message
		body.Fields = mErr.Fields
	}

	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		body = errorBody{Kind: string(marketplace.KindService), Message: "internal error"}
	}

	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// badRequest reports binding failures as validation errors.
func (s *Server) badRequest(c *gin.Context, err error) {
	fields := map[string]string{}

	var verrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var numErr *strconv.NumError
	var timeErr *time.ParseError
	switch {
	case errors.As(err, &verrs):
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
	case errors.As(err, &typeErr):
		fields[typeErr.Field] = fmt.Sprintf("must be %s", typeErr.Type)
	case errors.As(err, &numErr):
		fields["query"] = fmt.Sprintf("%q is not a valid number", numErr.Num)
	case errors.As(err, &timeErr):
		fields["query"] = fmt.Sprintf("%q is not an RFC 3339 timestamp", timeErr.Value)
	case errors.As(err, &syntaxErr):
		fields["body"] = "malformed JSON"
	default:
		fields["body"] = err.Error()
	}

	s.fail(c, marketplace.NewValidationError("invalid request", fields))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "len":
		return fmt.Sprintf("must be %s characters long", fe.Param())
	case "max":
		return "must be at most " + fe.Param() + " characters long"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func (s *Server) rateLimited(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": errorBody{
		Kind:    kindRateLimited,
		Message: "too many attempts, try again later",
	}})
}
