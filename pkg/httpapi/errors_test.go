package httpapi

import (
	"fmt"
	"net/http"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
)

func TestMapPipelineError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "validation error maps to 400",
			err:        pipelineerr.NewValidationError("content", "required"),
			expectCode: http.StatusBadRequest,
			expectMsg:  "content",
		},
		{
			name:       "parse error maps to 400",
			err:        pipelineerr.NewParseError("chat", "invalid JSON"),
			expectCode: http.StatusBadRequest,
			expectMsg:  "invalid JSON",
		},
		{
			name:       "flow not found maps to 404",
			err:        fmt.Errorf("resolve: %w", pipelineerr.ErrFlowNotFound),
			expectCode: http.StatusNotFound,
		},
		{
			name:       "config not found maps to 404",
			err:        fmt.Errorf("resolve: %w", pipelineerr.ErrConfigNotFound),
			expectCode: http.StatusNotFound,
		},
		{
			name:       "auth error maps to 401",
			err:        fmt.Errorf("chat.postMessage: %w", pipelineerr.ErrAuth),
			expectCode: http.StatusUnauthorized,
		},
		{
			name:       "unknown error maps to 500",
			err:        fmt.Errorf("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapPipelineError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)
			if tt.expectMsg != "" {
				assert.Contains(t, he.Error(), tt.expectMsg)
			}
		})
	}
}
