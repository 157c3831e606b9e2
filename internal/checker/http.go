package checker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avernost/depwatch/internal/config"
)

type httpChecker struct {
	svc    config.Service
	client *http.Client
}

func newHTTPChecker(svc config.Service, timeout time.Duration) *httpChecker {
	return &httpChecker{
		svc:    svc,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *httpChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		ServiceName: c.svc.Name,
		CheckedAt:   start,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.svc.Target, nil)
	if err != nil {
		result.Error = fmt.Sprintf("creating request: %v", err)
		result.Latency = time.Since(start)
		return result
	}

	resp, err := c.client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	resp.Body.Close()

	// Any 2xx counts as healthy.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return result
	}

	result.Healthy = true
	return result
}
