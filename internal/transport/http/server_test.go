package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	auth   *Authenticator
	timers *app.ActiveTimers
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, _ := logtest.NewNullLogger()

	docs := app.NewDocuments(memory.NewStore())
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(memory.SampleQuiz()), time.Minute)
	timers := app.NewActiveTimersWithClock(docs, logger, time.Hour, time.Now)
	scoring := app.NewScoringEngine(docs, quizzes, logger)
	ctrl := app.NewController(docs, quizzes, timers, scoring, logger)

	auth := NewAuthenticator(testSecret, "trivia-test")
	srv := httptest.NewServer(NewRouter(ctrl, logger, RouterConfig{
		Auth:      auth,
		PublicURL: "https://trivia.test",
	}))
	t.Cleanup(func() {
		srv.Close()
		timers.Close()
	})
	return &testServer{Server: srv, auth: auth, timers: timers}
}

func (s *testServer) token(t *testing.T, id, name string) string {
	t.Helper()
	tok, err := s.auth.Issue(domain.Identity{ID: id, DisplayName: name}, time.Hour)
	require.NoError(t, err)
	return tok
}

// call performs an authenticated JSON request and decodes the response into out.
func (s *testServer) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
