package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
)

// Upstream error text can carry API response bodies; none of it may reach
// the client.
func TestRespondFailureHidesErrorDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	upstream := errors.New(`model api http 429: {"error": {"message": "quota exceeded for key sk-123"}}`)
	respondFailure(c, log, http.StatusBadGateway, "start assessment", upstream)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, genericFailureMessage) {
		t.Fatalf("body = %q", body)
	}
	if strings.Contains(body, "quota exceeded") || strings.Contains(body, "sk-123") {
		t.Fatalf("upstream detail leaked: %q", body)
	}
}
