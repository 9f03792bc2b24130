package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/marquee/internal/cast"
	"github.com/Nixie-Tech-LLC/marquee/internal/distribution"
	"github.com/Nixie-Tech-LLC/marquee/internal/engine"
	"github.com/Nixie-Tech-LLC/marquee/internal/model"
	"github.com/Nixie-Tech-LLC/marquee/internal/playback"
)

type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

func BadRequest(msg string) *Error {
	return &Error{Code: http.StatusBadRequest, Message: msg}
}

// FromError maps an engine error to a status code. Unknown errors are
// logged and reported as 500 without their text.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, cast.ErrDeviceNotFound):
		return &Error{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, distribution.ErrConflict),
		errors.Is(err, distribution.ErrRetriesExhausted),
		errors.Is(err, cast.ErrNotConnected):
		return &Error{Code: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, distribution.ErrInvalidRequest), errors.Is(err, playback.ErrInvalidEvent):
		return &Error{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, engine.ErrCastDisabled):
		return &Error{Code: http.StatusServiceUnavailable, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: http.StatusGatewayTimeout, Message: "timed out"}
	}
	log.Error().Err(err).Msg("request failed")
	return &Error{Code: http.StatusInternalServerError, Message: "internal error"}
}

type HandlerFunc func(ctx *gin.Context) (any, *Error)

func ResolveEndpoint(h HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, apiErr := h(ctx)
		if apiErr != nil {
			_ = ctx.Error(apiErr)
			ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
			return
		}

		// handlers may choose another success code with ctx.Status
		ctx.JSON(ctx.Writer.Status(), result)
	}
}

// IntParam reads a positive integer path parameter.
func IntParam(ctx *gin.Context, name string) (int, *Error) {
	v, err := strconv.Atoi(ctx.Param(name))
	if err != nil || v <= 0 {
		return 0, BadRequest("invalid " + name)
	}
	return v, nil
}
