package server

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/KUMARAN-07/Academic-Collab/internal/storage/memstore"
	"github.com/KUMARAN-07/Academic-Collab/pkg/config"
	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handshake-test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	cfg := &config.Config{
		Server:    config.ServerConfig{Address: ":0", Auth: config.AuthConfig{JWTSecret: testSecret}},
		Transport: config.TransportConfig{ReadTimeout: time.Minute},
		Health:    config.HealthConfig{Interval: time.Minute, ProbeTimeout: time.Second},
	}
	app := NewApp(logger, context.Background(), cfg, memstore.New())
	srv := httptest.NewServer(app.http.Handler)
	t.Cleanup(srv.Close)
	return srv
}

// dialExpectClose connects to the upgrade endpoint and returns the close
// handshake the server answered with.
func dialExpectClose(t *testing.T, url string) websocket.CloseError {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err, "the upgrade itself must succeed; rejection happens over the socket")
	defer client.CloseNow()

	_, _, err = client.Read(ctx)
	require.Error(t, err)
	var closeErr websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	return closeErr
}

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestHandshakeMissingTokenClosesAuthenticationRequired(t *testing.T) {
	srv := newTestServer(t)

	closeErr := dialExpectClose(t, srv.URL+"/ws")
	assert.Equal(t, websocket.StatusPolicyViolation, closeErr.Code)
	assert.Equal(t, "Authentication required", closeErr.Reason)
}

func TestHandshakeBadTokenClosesAuthenticationFailed(t *testing.T) {
	srv := newTestServer(t)

	closeErr := dialExpectClose(t, srv.URL+"/ws?token=not-a-jwt")
	assert.Equal(t, websocket.StatusPolicyViolation, closeErr.Code)
	assert.Equal(t, "Authentication failed", closeErr.Reason)
}

func TestHandshakeUnknownUserClosesUserNotFound(t *testing.T) {
	srv := newTestServer(t)

	closeErr := dialExpectClose(t, srv.URL+"/ws?token="+signedToken(t, "ghost"))
	assert.Equal(t, websocket.StatusPolicyViolation, closeErr.Code)
	assert.Equal(t, "User not found", closeErr.Reason)
}
