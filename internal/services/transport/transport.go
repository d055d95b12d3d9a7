package transport

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service implements the request/reply transport between the session
// controller and the page agent. Delivery is unreliable by design: right
// after a navigation no agent exists, and such sends fail with a recoverable
// classification the readiness protocol knows how to handle.
type Service struct {
	registry       *Registry
	logger         arbor.ILogger
	requestTimeout time.Duration
	retryDelay     time.Duration
}

// NewService creates a transport over the given agent registry.
func NewService(registry *Registry, config common.TransportConfig, logger arbor.ILogger) *Service {
	return &Service{
		registry:       registry,
		logger:         logger,
		requestTimeout: common.ParseDurationOr(config.RequestTimeout, 30*time.Second),
		retryDelay:     common.ParseDurationOr(config.RetryDelay, time.Second),
	}
}

// Send delivers msg to the currently bound agent and returns its response.
// With opts.Retry a failed delivery is retried exactly once after a fixed
// delay. With opts.Quiet failures are not logged; a failed ping is an
// expected outcome, not noise-worthy.
func (s *Service) Send(ctx context.Context, msg models.Message, opts interfaces.SendOptions) (*models.Response, error) {
	resp, err := s.attempt(ctx, msg)
	if err == nil {
		return resp, nil
	}

	if !opts.Retry {
		if !opts.Quiet {
			s.logger.Warn().
				Err(err).
				Str("action", string(msg.Action)).
				Msg("Message delivery failed")
		}
		return nil, err
	}

	if !opts.Quiet {
		s.logger.Debug().
			Err(err).
			Str("action", string(msg.Action)).
			Dur("retry_delay", s.retryDelay).
			Msg("Message delivery failed, retrying once")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.retryDelay):
	}

	resp, err = s.attempt(ctx, msg)
	if err != nil {
		if !opts.Quiet {
			s.logger.Warn().
				Err(err).
				Str("action", string(msg.Action)).
				Msg("Message delivery failed after retry")
		}
		return nil, err
	}
	return resp, nil
}

// attempt performs a single bounded delivery to the bound agent.
func (s *Service) attempt(ctx context.Context, msg models.Message) (*models.Response, error) {
	handler := s.registry.Current()
	if handler == nil || !handler.Alive() {
		return nil, models.NewRecoverableDelivery(models.ErrAgentUnavailable)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	resp, err := handler.Handle(sendCtx, msg)
	if err != nil {
		// An agent torn down mid-send is the same condition as one not yet
		// installed: recoverable by reinstalling.
		if errors.Is(err, models.ErrAgentClosed) || errors.Is(err, models.ErrAgentUnavailable) {
			return nil, models.NewRecoverableDelivery(err)
		}
		return nil, models.NewDeliveryFailure(err)
	}
	return resp, nil
}
