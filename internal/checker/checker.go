package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/avernost/depwatch/internal/config"
)

// Checker performs a single health probe. Implementations never return an
// error: every failure mode is captured in the CheckResult.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// New returns the appropriate Checker for the given service configuration.
func New(svc config.Service, timeout time.Duration) (Checker, error) {
	switch svc.Kind {
	case "http":
		return newHTTPChecker(svc, timeout), nil
	case "tcp":
		return newTCPChecker(svc, timeout), nil
	default:
		return nil, fmt.Errorf("unknown checker kind %q", svc.Kind)
	}
}
