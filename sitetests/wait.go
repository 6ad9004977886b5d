package sitetests

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pitabwire/util"
)

// WaitForCondition polls condition until it reports true, ctx ends or timeout passes.
func WaitForCondition(
	ctx context.Context,
	condition func() bool,
	timeout time.Duration,
	pollInterval time.Duration,
) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return fmt.Errorf("condition not met within timeout of %v", timeout)
}

// WaitForHealthy polls url until it answers 200.
func WaitForHealthy(ctx context.Context, url string, timeout time.Duration) error {
	client := &http.Client{Timeout: time.Second}

	return WaitForCondition(ctx, func() bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer util.CloseAndLogOnError(ctx, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, timeout, 20*time.Millisecond)
}
