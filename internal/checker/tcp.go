package checker

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/avernost/depwatch/internal/config"
)

type tcpChecker struct {
	svc     config.Service
	timeout time.Duration
}

func newTCPChecker(svc config.Service, timeout time.Duration) *tcpChecker {
	return &tcpChecker{svc: svc, timeout: timeout}
}

func (c *tcpChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		ServiceName: c.svc.Name,
		CheckedAt:   start,
	}

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.svc.Target)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = fmt.Sprintf("dial tcp %s: %v", c.svc.Target, err)
		return result
	}
	conn.Close()
	result.Healthy = true
	return result
}
