//nolint:testpackage // Testing internal httpserver requires same package access
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newHealthRouter(checks map[string]HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterHealthRoutes(router, "studies-pipeline", "1.0.0", checks)
	return router
}

func TestHealthEndpoint_NoChecks(t *testing.T) {
	router := newHealthRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Status != HealthStatusHealthy {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Service != "studies-pipeline" || resp.Version != "1.0.0" {
		t.Errorf("identity = %s/%s, want studies-pipeline/1.0.0", resp.Service, resp.Version)
	}
}

func TestHealthEndpoint_HealthyDatabase(t *testing.T) {
	router := newHealthRouter(map[string]HealthChecker{
		"database": DatabaseHealthChecker(func() error { return nil }),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	check, ok := resp.Checks["database"]
	if !ok {
		t.Fatal("database check missing from response")
	}
	if check.Status != HealthStatusHealthy {
		t.Errorf("database check status = %q, want healthy", check.Status)
	}
	if check.Latency == "" {
		t.Error("database check must report latency")
	}
}

func TestHealthEndpoint_UnhealthyDatabase(t *testing.T) {
	router := newHealthRouter(map[string]HealthChecker{
		"database": DatabaseHealthChecker(func() error { return errors.New("connection refused") }),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Status != HealthStatusUnhealthy {
		t.Errorf("status = %q, want unhealthy", resp.Status)
	}
}

func TestHealthEndpoint_Head(t *testing.T) {
	router := newHealthRouter(nil)

	req := httptest.NewRequest(http.MethodHead, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
