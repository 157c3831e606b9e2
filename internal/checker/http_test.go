package checker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avernost/depwatch/internal/checker"
	"github.com/avernost/depwatch/internal/config"
)

func makeHTTPService(url string) config.Service {
	return config.Service{
		Name:   "test-http",
		Kind:   "http",
		Target: url,
	}
}

func TestHTTPChecker_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := checker.New(makeHTTPService(srv.URL), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	result := c.Check(context.Background())
	if !result.Healthy {
		t.Errorf("expected healthy, got unhealthy: %s", result.Error)
	}
	if result.Latency <= 0 {
		t.Errorf("expected positive latency, got %v", result.Latency)
	}
	if result.Error != "" {
		t.Errorf("expected no error, got %q", result.Error)
	}
}

func TestHTTPChecker_Any2xxIsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := checker.New(makeHTTPService(srv.URL), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	result := c.Check(context.Background())
	if !result.Healthy {
		t.Errorf("expected 202 to be healthy, got unhealthy: %s", result.Error)
	}
}

func TestHTTPChecker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := checker.New(makeHTTPService(srv.URL), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	result := c.Check(context.Background())
	if result.Healthy {
		t.Error("expected unhealthy for 500 response")
	}
	if result.Error == "" {
		t.Error("expected error message for 500 response")
	}
}

func TestHTTPChecker_Redirect3xxIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c, err := checker.New(makeHTTPService(srv.URL), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	result := c.Check(context.Background())
	if result.Healthy {
		t.Error("expected unhealthy for 304 response")
	}
}

func TestHTTPChecker_NetworkError(t *testing.T) {
	// Use a server that we close immediately.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := checker.New(makeHTTPService(url), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	result := c.Check(context.Background())
	if result.Healthy {
		t.Error("expected unhealthy for connection refused")
	}
	if result.Error == "" {
		t.Error("expected error message for connection refused")
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := checker.New(makeHTTPService(srv.URL), 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	result := c.Check(context.Background())
	if result.Healthy {
		t.Error("expected unhealthy when the target exceeds the timeout")
	}
}

func TestChecker_UnknownKind(t *testing.T) {
	_, err := checker.New(config.Service{Name: "x", Kind: "icmp", Target: "example.com"}, time.Second)
	if err == nil {
		t.Error("expected error for unknown kind")
	}
}
