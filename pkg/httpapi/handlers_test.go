package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
)

type fakeProcessor struct {
	err       error
	calls     int
	lastKind  domain.SourceType
	lastBytes []byte
}

func (f *fakeProcessor) Process(ctx context.Context, sourceType domain.SourceType, payload []byte) error {
	f.calls++
	f.lastKind = sourceType
	f.lastBytes = payload
	return f.err
}

func newTestServer(p Processor) *Server {
	return &Server{echo: echo.New(), processor: p, validate: newValidatorAdapter()}
}

func TestChatWebhookHandler_AnswersURLVerificationWithoutProcessing(t *testing.T) {
	fake := &fakeProcessor{}
	s := newTestServer(fake)

	body := `{"type":"url_verification","challenge":"abc123"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	require.NoError(t, s.chatWebhookHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ChallengeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc123", resp.Challenge)
	assert.Equal(t, 0, fake.calls, "a handshake must never reach the orchestrator")
}

func TestChatWebhookHandler_ProcessesEventCallback(t *testing.T) {
	fake := &fakeProcessor{}
	s := newTestServer(fake)

	body := `{"team_id":"T1","event":{"type":"message","channel":"C1","ts":"1.1","text":"hi"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	require.NoError(t, s.chatWebhookHandler(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, domain.SourceChat, fake.lastKind)
}

func TestChatWebhookHandler_MapsValidationErrorTo400(t *testing.T) {
	fake := &fakeProcessor{err: pipelineerr.NewValidationError("content", "required")}
	s := newTestServer(fake)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", strings.NewReader(`{"team_id":"T1","event":{"channel":"C1","ts":"1.1"}}`))
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	err := s.chatWebhookHandler(c)
	require.Error(t, err)
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestChatWebhookHandler_MapsFlowNotFoundTo404(t *testing.T) {
	fake := &fakeProcessor{err: pipelineerr.ErrFlowNotFound}
	s := newTestServer(fake)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", strings.NewReader(`{"team_id":"T1","event":{"channel":"C1","ts":"1.1"}}`))
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	err := s.chatWebhookHandler(c)
	require.Error(t, err)
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestChatWebhookHandler_MapsUnknownErrorTo500(t *testing.T) {
	fake := &fakeProcessor{err: errors.New("boom")}
	s := newTestServer(fake)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", strings.NewReader(`{"team_id":"T1","event":{"channel":"C1","ts":"1.1"}}`))
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	err := s.chatWebhookHandler(c)
	require.Error(t, err)
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
}

func TestEmailWebhookHandler_RejectsMissingRequiredField(t *testing.T) {
	fake := &fakeProcessor{}
	s := newTestServer(fake)

	body := `{"emailSlug":"design-1","fileKey":"f1","rawMessage":"From: a@b.com\r\n\r\nhi"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/email", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	err := s.emailWebhookHandler(c)
	require.Error(t, err)
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	assert.Equal(t, 0, fake.calls)
}

func TestEmailWebhookHandler_ProcessesValidPayload(t *testing.T) {
	fake := &fakeProcessor{}
	s := newTestServer(fake)

	body := `{"emailSlug":"design-1","fileKey":"f1","commentId":"c1","rawMessage":"From: a@b.com\r\n\r\nhi"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/email", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	require.NoError(t, s.emailWebhookHandler(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, domain.SourceDesignEmail, fake.lastKind)
}
