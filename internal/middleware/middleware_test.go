package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	"github.com/jinhwansong/konnect-back-sub000/internal/service"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
	"github.com/jinhwansong/konnect-back-sub000/pkg/logger"
)

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Wrap(errors.New("bad signature"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(logger.UserIDKey)})
	})
	r.GET("/protected", handlers...)
	return r
}

func doGet(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWT(t *testing.T) {
	validator := stubValidator{"good": {UserID: "mentee-1", Role: models.RoleMentee}}
	r := newRouter(JWT(validator))

	rec := doGet(r, "Bearer good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mentee-1")

	for _, header := range []string{"", "good", "Basic good", "Bearer ", "Bearer bad"} {
		rec := doGet(r, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	}
}

func TestOptionalJWT(t *testing.T) {
	validator := stubValidator{"good": {UserID: "mentee-1", Role: models.RoleMentee}}
	r := newRouter(OptionalJWT(validator))

	assert.Contains(t, doGet(r, "Bearer good").Body.String(), "mentee-1")
	rec := doGet(r, "Bearer bad")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "mentee-1")
}

func TestRequireRoles(t *testing.T) {
	validator := stubValidator{
		"mentor": {UserID: "mentor-1", Role: models.RoleMentor},
		"mentee": {UserID: "mentee-1", Role: models.RoleMentee},
		"admin":  {UserID: "admin-1", Role: models.RoleAdmin},
	}
	r := newRouter(JWT(validator), RequireRoles(models.RoleMentor, models.RoleAdmin))

	assert.Equal(t, http.StatusOK, doGet(r, "Bearer mentor").Code)
	assert.Equal(t, http.StatusOK, doGet(r, "Bearer admin").Code)
	assert.Equal(t, http.StatusForbidden, doGet(r, "Bearer mentee").Code)

	bare := newRouter(RequireRoles(models.RoleMentor))
	assert.Equal(t, http.StatusUnauthorized, doGet(bare, "").Code)
}

func TestMetricsMiddleware(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newRouter(Metrics(metrics))

	doGet(r, "")
	doGet(r, "")
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}
