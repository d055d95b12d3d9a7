package session

import (
	"context"
	"time"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ensureReady confirms a live page agent is answering commands, reinstalling
// one if necessary. The handshake is: ping up to maxPingAttempts times, and
// if none answered, install a fresh agent, wait for it to settle, then ping
// up to retryPingAttempts more times. Returns false only when the agent
// stayed unreachable through the whole protocol.
func (s *Service) ensureReady(ctx context.Context) bool {
	if s.pingUntilAlive(ctx, s.maxPingAttempts) {
		return true
	}

	s.logger.Info().
		Int("attempts", s.maxPingAttempts).
		Msg("Page agent not answering, reinstalling")

	if err := s.installer.Install(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Page agent reinstall failed")
		return false
	}

	if !s.sleep(ctx, s.installSettle) {
		return false
	}

	return s.pingUntilAlive(ctx, s.retryPingAttempts)
}

// pingUntilAlive sends up to attempts pings spaced pingInterval apart and
// returns true on the first alive reply. Pings are quiet and never retried;
// an unanswered ping is an expected outcome here, not a failure.
func (s *Service) pingUntilAlive(ctx context.Context, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if i > 0 && !s.sleep(ctx, s.pingInterval) {
			return false
		}

		resp, err := s.transport.Send(ctx, models.Message{Action: models.ActionPing}, interfaces.SendOptions{Quiet: true})
		if err == nil && resp != nil && resp.Status == models.StatusAlive {
			return true
		}
	}
	return false
}

// sleep waits for d unless the context ends first.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
