package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// chatWebhookHandler handles POST /webhooks/chat. Slack's Events API sends
// a one-time url_verification handshake before any real event traffic;
// that handshake is answered here, before the body ever reaches the chat
// adapter's ParseIncoming.
func (s *Server) chatWebhookHandler(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read request body")
	}

	var env chatEventEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Type == "url_verification" {
		return c.JSON(http.StatusOK, ChallengeResponse{Challenge: env.Challenge})
	}

	if err := s.processor.Process(c.Request().Context(), domain.SourceChat, body); err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusAccepted, AckResponse{Status: "processed"})
}

// emailWebhookHandler handles POST /webhooks/email, the design-tool
// comment-created callback.
func (s *Server) emailWebhookHandler(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read request body")
	}

	var env emailWebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}
	if err := s.validate.Struct(env); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.processor.Process(c.Request().Context(), domain.SourceDesignEmail, body); err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusAccepted, AckResponse{Status: "processed"})
}
