package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/avernost/depwatch/internal/checker"
	"github.com/avernost/depwatch/internal/config"
)

func executeCheck(cmd *cobra.Command, cfg *config.Config) error {
	return runChecks(cmd.OutOrStdout(), cfg)
}

func runChecks(out io.Writer, cfg *config.Config) error {
	results := make([]checker.CheckResult, len(cfg.Services))
	var wg sync.WaitGroup

	for i, svc := range cfg.Services {
		wg.Add(1)
		go func(i int, svc config.Service) {
			defer wg.Done()
			c, err := checker.New(svc, cfg.Timeout.Duration)
			if err != nil {
				results[i] = checker.CheckResult{
					ServiceName: svc.Name,
					Error:       fmt.Sprintf("creating checker: %v", err),
					CheckedAt:   time.Now(),
				}
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Duration)
			defer cancel()
			results[i] = c.Check(ctx)
		}(i, svc)
	}
	wg.Wait()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tKIND\tCRITICAL\tHEALTHY\tLATENCY\tERROR")
	allHealthy := true
	for i, r := range results {
		svc := cfg.Services[i]
		latency := "—"
		if r.Latency > 0 {
			latency = r.Latency.Round(time.Millisecond).String()
		}
		healthy := "no"
		if r.Healthy {
			healthy = "yes"
		}
		critical := ""
		if svc.Critical {
			critical = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			svc.Name,
			svc.Kind,
			critical,
			healthy,
			latency,
			r.Error,
		)
		if !r.Healthy {
			allHealthy = false
		}
	}
	w.Flush()

	if !allHealthy {
		return fmt.Errorf("one or more services are unhealthy")
	}
	return nil
}
