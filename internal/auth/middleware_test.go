package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(svc.Middleware())
	r.GET("/ping", func(c *gin.Context) {
		operator, _ := OperatorFromContext(c)
		c.String(http.StatusOK, operator)
	})
	return r
}

func doGet(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareOpenWithoutTokens(t *testing.T) {
	svc := NewService([]string{"", "  "})
	if svc.Enabled() {
		t.Fatalf("blank tokens should not enable auth")
	}
	if w := doGet(newRouter(svc), ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMiddlewareValidatesBearer(t *testing.T) {
	r := newRouter(NewService([]string{"alpha", "beta"}))

	if w := doGet(r, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}
	if w := doGet(r, "Bearer gamma"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", w.Code)
	}
	w := doGet(r, "bearer beta")
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", w.Code)
	}
	if len(w.Body.String()) != 8 {
		t.Fatalf("expected 8-char operator id, got %q", w.Body.String())
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	b, _ := GenerateToken()
	if len(a) != 64 || a == b {
		t.Fatalf("unexpected tokens %q %q", a, b)
	}
	svc := NewService([]string{a})
	if _, err := svc.ValidateToken(a); err != nil {
		t.Fatalf("generated token should validate: %v", err)
	}
}
