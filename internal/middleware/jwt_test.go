package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"messer/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	token, err := GenerateToken("user-1")
	require.NoError(t, err)

	userID, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestValidateRejects(t *testing.T) {
	secret := []byte(config.GlobalConfig.JWT.Secret)
	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	future := time.Now().Add(time.Hour).Unix()

	cases := map[string]string{
		"empty":       "",
		"garbage":     "not.a.token",
		"expired":     sign(jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": "u", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no exp":      sign(jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": "u"}),
		"no user":     sign(jwt.SigningMethodHS256, secret, jwt.MapClaims{"exp": future}),
		"wrong key":   sign(jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": "u", "exp": future}),
		"wrong alg":   sign(jwt.SigningMethodHS512, secret, jwt.MapClaims{"user_id": "u", "exp": future}),
		"numeric sub": sign(jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": 42, "exp": future}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateToken(token)
			assert.Error(t, err)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/ws?token=abc", nil)
	assert.Equal(t, "abc", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic xyz")
	assert.Empty(t, TokenFromRequest(r))
}

func TestJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWT(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserID))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := GenerateToken("user-9")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-9", w.Body.String())
}
