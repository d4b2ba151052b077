package jwt

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lanchat/config"

	"github.com/gin-gonic/gin"
)

func newTestService() *JWTService {
	return NewJWTService(config.JWTConfig{Secret: "test-secret", Issuer: "lanchat", ExpireTime: time.Hour})
}

func TestIssueAndValidate(t *testing.T) {
	s := newTestService()
	token, err := s.IssueToken(42, "alice")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 || claims.Username != "alice" {
		t.Errorf("claims = %+v, id = %d, err = %v", claims, id, err)
	}

	if _, err := s.IssueToken(0, "nobody"); err == nil {
		t.Error("expected error for zero user id")
	}
}

func TestValidateRejects(t *testing.T) {
	s := newTestService()
	token, _ := s.IssueToken(1, "alice")

	other := NewJWTService(config.JWTConfig{Secret: "other", Issuer: "lanchat", ExpireTime: time.Hour})
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with another key accepted")
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.ValidateToken(token); err == nil {
		t.Error("expired token accepted")
	}

	if _, err := s.ValidateToken(""); err == nil {
		t.Error("empty token accepted")
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestService()
	token, _ := s.IssueToken(7, "bob")

	r := gin.New()
	r.GET("/me", s.AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c)})
	})

	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"bearer header", "/me", "Bearer " + token, `{"id":7}`},
		{"query token", "/me?token=" + token, "", `{"id":7}`},
		{"missing", "/me", "", `"code":401`},
		{"bad scheme", "/me", "Basic abc", `"code":401`},
		{"bad token", "/me?token=garbage", "", `"code":401`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if body := w.Body.String(); !strings.Contains(body, tt.want) {
				t.Errorf("body = %s, want substring %s", body, tt.want)
			}
		})
	}
}
