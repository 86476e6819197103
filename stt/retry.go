package stt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxRetries bounds re-attempts for transient HTTP failures.
const maxRetries = 3

// transientStatus reports whether a status code is worth retrying.
func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// doWithRetry executes the request produced by build, retrying network
// errors and transient HTTP statuses with exponential backoff. A fresh
// request is built per attempt so the body can be re-read. The response
// body of the terminal attempt is returned.
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			slog.Debug("retrying transcription request", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("send request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}
		if transientStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("api error %d: %s", resp.StatusCode, truncate(body, 200))
			continue
		}
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
