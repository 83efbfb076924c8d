package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
)

// mapPipelineError maps an orchestrator-returned error to an HTTP response,
// mirroring the teacher's mapServiceError: known, non-retryable fault kinds
// map to a specific 4xx; everything else is logged and answered with a
// generic 500 so internal detail never reaches the caller.
func mapPipelineError(err error) *echo.HTTPError {
	var validErr *pipelineerr.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	var parseErr *pipelineerr.ParseError
	if errors.As(err, &parseErr) {
		return echo.NewHTTPError(http.StatusBadRequest, parseErr.Error())
	}
	if errors.Is(err, pipelineerr.ErrFlowNotFound) || errors.Is(err, pipelineerr.ErrConfigNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no active flow or config for this routing key")
	}
	if errors.Is(err, pipelineerr.ErrAuth) {
		return echo.NewHTTPError(http.StatusUnauthorized, "upstream credential rejected")
	}

	slog.Error("pipeline processing failed", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
