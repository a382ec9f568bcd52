package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/syncd/internal/application/services"
	"github.com/pulsecrm/syncd/internal/infrastructure/database"
	"github.com/pulsecrm/syncd/pkg/auth"
	"github.com/pulsecrm/syncd/pkg/constants"
)

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	// The fire-and-forget last-seen touch may or may not land before the
	// test ends; accept it either way.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec(`(?s)UPDATE sync_device`).WillReturnResult(sqlmock.NewResult(0, 1))

	authSvc := services.NewAuthService(database.NewFromDB(db))

	router := gin.New()
	router.GET("/protected", RequireAuth(authSvc), func(c *gin.Context) {
		device, _ := c.Get(constants.ContextKeyDevice)
		session := device.(auth.DeviceSession)
		c.JSON(http.StatusOK, gin.H{"device_id": session.ID})
	})
	return router
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	router := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_MalformedHeader(t *testing.T) {
	router := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(constants.HeaderAuthorization, "Token abc")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	router := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(constants.HeaderAuthorization, "Bearer garbage")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_ValidTokenInjectsDevice(t *testing.T) {
	router := newAuthRouter(t)

	token, err := auth.GenerateToken(auth.DeviceSession{ID: "dev-1", Name: "Pixel 9", Platform: "android"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dev-1")
}
