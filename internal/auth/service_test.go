package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
)

func newTestService() *Service {
	return NewService("edwin@gmail.com", "password123", "test-secret", time.Hour)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantErr  bool
	}{
		{name: "valid credentials", email: "edwin@gmail.com", password: "password123"},
		{name: "wrong password", email: "edwin@gmail.com", password: "password", wantErr: true},
		{name: "wrong email", email: "someone@gmail.com", password: "password123", wantErr: true},
		{name: "empty", wantErr: true},
	}

	s := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := s.Login(tt.email, tt.password)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.Is(err, apperrors.CategoryAuthentication))
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)

			email, err := s.ValidateSessionToken(token)
			require.NoError(t, err)
			assert.Equal(t, "edwin@gmail.com", email)
		})
	}
}

func TestValidateSessionTokenRejects(t *testing.T) {
	s := newTestService()

	expired := newTestService()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.GenerateSessionToken("edwin@gmail.com")
	require.NoError(t, err)

	other := NewService("edwin@gmail.com", "password123", "other-secret", time.Hour)
	foreignToken, err := other.GenerateSessionToken("edwin@gmail.com")
	require.NoError(t, err)

	noEmail, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "expired", token: expiredToken},
		{name: "wrong secret", token: foreignToken},
		{name: "missing email", token: noEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ValidateSessionToken(tt.token)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.CategoryAuthentication))
		})
	}
}

func TestOptionalSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestService()
	token, err := s.Login("edwin@gmail.com", "password123")
	require.NoError(t, err)

	router := gin.New()
	router.Use(s.OptionalSession())
	router.GET("/me", func(c *gin.Context) {
		email, ok := SessionEmail(c)
		c.JSON(http.StatusOK, gin.H{"email": email, "authenticated": ok})
	})

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "valid bearer", header: "Bearer " + token, want: `{"authenticated":true,"email":"edwin@gmail.com"}`},
		{name: "bad bearer", header: "Bearer nope", want: `{"authenticated":false,"email":""}`},
		{name: "no header", want: `{"authenticated":false,"email":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}
