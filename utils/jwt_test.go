package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-vm-orchestrator/config"
)

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func testEnvConfig(secret string) *config.EnvConfig {
	cfg := &config.EnvConfig{}
	cfg.JWT.SecretKey = secret
	return cfg
}

func TestParseTokenRoundTrip(t *testing.T) {
	userID := uuid.New()
	tokenString := signedToken(t, "secret", jwt.MapClaims{"user_id": userID.String(), "is_admin": true})

	token, err := ParseToken(tokenString, testEnvConfig("secret"))
	require.NoError(t, err)
	assert.True(t, token.Valid)

	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, userID.String(), claims["user_id"])
	assert.Equal(t, true, claims["is_admin"])
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	tokenString := signedToken(t, "secret", jwt.MapClaims{"user_id": uuid.NewString()})

	_, err := ParseToken(tokenString, testEnvConfig("other-secret"))
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	c.Request.Header.Set("Authorization", "Bearer abc.def.ghi")

	assert.Equal(t, "abc.def.ghi", ExtractToken(c))
}

func TestExtractTokenPrefersCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-token"})
	c.Request.Header.Set("Authorization", "Bearer header-token")

	assert.Equal(t, "cookie-token", ExtractToken(c))
}

func TestExtractTokenMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)

	assert.Empty(t, ExtractToken(c))
}

func TestInjectClaimsToContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	userID := uuid.New()
	err := InjectClaimsToContext(c, jwt.MapClaims{"user_id": userID.String(), "is_admin": true})
	require.NoError(t, err)

	gotID, exists := c.Get("user_id")
	require.True(t, exists)
	assert.Equal(t, userID, gotID)

	gotAdmin, exists := c.Get("is_admin")
	require.True(t, exists)
	assert.Equal(t, true, gotAdmin)
}

func TestInjectClaimsToContextRejectsBadUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Error(t, InjectClaimsToContext(c, jwt.MapClaims{"user_id": "not-a-uuid"}))
	assert.Error(t, InjectClaimsToContext(c, jwt.MapClaims{"is_admin": true}))
}
