package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/internal/services"
	"github.com/temcen/livelab/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.BaseURL = "http://localhost:8080"
	cfg.Server.WebAddress = "http://web.example.org"
	return cfg
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type traceCall struct {
	userID    int64
	articleID string
	trace     uuid.UUID
}

// mockFeedback implements services.FeedbackServiceInterface.
type mockFeedback struct {
	clickEmailErr  error
	saveEmailErr   error
	unsubscribeErr error

	emailClicks  []traceCall
	emailSaves   []traceCall
	unsubscribes []uuid.UUID
}

func (m *mockFeedback) ClickWeb(ctx context.Context, userID int64, articleID string) error {
	return nil
}

func (m *mockFeedback) SeenWeb(ctx context.Context, userID int64, articleIDs []string) error {
	return nil
}

func (m *mockFeedback) SaveWeb(ctx context.Context, userID int64, articleID string, saved bool) error {
	return nil
}

func (m *mockFeedback) ClickEmail(ctx context.Context, userID int64, articleID string, trace uuid.UUID) error {
	if m.clickEmailErr != nil {
		return m.clickEmailErr
	}
	m.emailClicks = append(m.emailClicks, traceCall{userID: userID, articleID: articleID, trace: trace})
	return nil
}

func (m *mockFeedback) SaveEmail(ctx context.Context, userID int64, articleID string, trace uuid.UUID) error {
	if m.saveEmailErr != nil {
		return m.saveEmailErr
	}
	m.emailSaves = append(m.emailSaves, traceCall{userID: userID, articleID: articleID, trace: trace})
	return nil
}

func (m *mockFeedback) Unsubscribe(ctx context.Context, trace uuid.UUID) error {
	if m.unsubscribeErr != nil {
		return m.unsubscribeErr
	}
	m.unsubscribes = append(m.unsubscribes, trace)
	return nil
}

func (m *mockFeedback) SetTopicState(ctx context.Context, userID int64, topic string, state models.TopicState) error {
	return nil
}

func callbackRouter(feedback *mockFeedback) *gin.Engine {
	h := NewCallbackHandler(testConfig(), quietLogger(), feedback)

	router := gin.New()
	router.GET("/mail/read/:userID/:articleID/:trace", h.Read)
	router.GET("/mail/save/:userID/:articleID/:trace", h.Save)
	router.GET("/mail/unsubscribe/:trace", h.Unsubscribe)
	return router
}

func TestReadCallbackCreditsAndRedirects(t *testing.T) {
	feedback := &mockFeedback{}
	router := callbackRouter(feedback)
	trace := uuid.New()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/mail/read/42/2401.00001/"+trace.String(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://arxiv.org/abs/2401.00001", w.Header().Get("Location"))

	require.Len(t, feedback.emailClicks, 1)
	assert.Equal(t, traceCall{userID: 42, articleID: "2401.00001", trace: trace}, feedback.emailClicks[0])
}

func TestReadCallbackBadTraceStillRedirects(t *testing.T) {
	// The reader must always reach the article; a wrong trace only means the
	// click is not credited.
	feedback := &mockFeedback{clickEmailErr: services.ErrTraceMismatch}
	router := callbackRouter(feedback)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/mail/read/42/2401.00001/"+uuid.NewString(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://arxiv.org/abs/2401.00001", w.Header().Get("Location"))
	assert.Empty(t, feedback.emailClicks)
}

func TestReadCallbackMalformedTrace(t *testing.T) {
	feedback := &mockFeedback{}
	router := callbackRouter(feedback)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/mail/read/42/2401.00001/not-a-uuid", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Empty(t, feedback.emailClicks, "malformed traces never reach the service")
}

func TestSaveCallback(t *testing.T) {
	feedback := &mockFeedback{}
	router := callbackRouter(feedback)
	trace := uuid.New()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/mail/save/7/2401.00002/"+trace.String(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://web.example.org/saved", w.Header().Get("Location"))
	require.Len(t, feedback.emailSaves, 1)
	assert.Equal(t, trace, feedback.emailSaves[0].trace)
}

func TestUnsubscribeCallback(t *testing.T) {
	feedback := &mockFeedback{}
	router := callbackRouter(feedback)
	trace := uuid.New()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/mail/unsubscribe/"+trace.String(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://web.example.org/unsubscribed", w.Header().Get("Location"))
	require.Len(t, feedback.unsubscribes, 1)
	assert.Equal(t, trace, feedback.unsubscribes[0])
}

func TestUnsubscribeCallbackUnknownTrace(t *testing.T) {
	feedback := &mockFeedback{unsubscribeErr: services.ErrTraceMismatch}
	router := callbackRouter(feedback)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/mail/unsubscribe/"+uuid.NewString(), nil)
	router.ServeHTTP(w, req)

	// Still redirected; nothing changed server-side.
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://web.example.org/unsubscribed", w.Header().Get("Location"))
}
