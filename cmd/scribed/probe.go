package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/scribed/scribed/internal/config"
)

const probeInterval = 5 * time.Minute

// startProbe periodically checks that the transcription provider is
// reachable and that the configured credentials are accepted, so a revoked
// key or provider outage shows up in the logs before jobs start failing.
//
// Fails silently — a probe error never stops the service.
func startProbe(ctx context.Context, cfg *config.Config) {
	go func() {
		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()

		probe(ctx, cfg)
		for {
			select {
			case <-ticker.C:
				probe(ctx, cfg)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func probe(ctx context.Context, cfg *config.Config) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, cfg.ProviderURL+"/models", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+cfg.ProviderKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Warn("probe: provider unreachable", "error", err)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		slog.Warn("probe: provider rejected credentials", "status", resp.StatusCode)
	case resp.StatusCode >= 500:
		slog.Warn("probe: provider unhealthy", "status", resp.StatusCode)
	}
}
