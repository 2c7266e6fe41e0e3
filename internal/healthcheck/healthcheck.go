// Package healthcheck probes a Firehose deployment's HTTP health endpoint
// before a long extraction starts, so misconfiguration fails fast instead of
// burning the stream's reconnect budget.
package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const probeTimeout = 10 * time.Second

// Probe performs a GET against url and succeeds on any 2xx status.
func Probe(ctx context.Context, url string) error {
	client := resty.New().
		SetTimeout(probeTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return fmt.Errorf("probing %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("endpoint %s not healthy: %s", url, resp.Status())
	}
	return nil
}
