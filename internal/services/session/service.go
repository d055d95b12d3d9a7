package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service is the session controller: it owns the single process-wide
// collection session and drives it through the fixed sequence of record
// original location, confirm agent readiness, scrape the main page, work
// the section queue in FIFO order, fetch the contact overlay, and restore
// the original location.
//
// Start rejects concurrent runs; everything after Start happens on one
// background goroutine, so session state needs no finer locking than the
// snapshot mutex.
type Service struct {
	transport interfaces.Transport
	navigator interfaces.Navigator
	installer interfaces.AgentInstaller
	events    interfaces.EventService
	delay     DelayPolicy
	logger    arbor.ILogger

	profilePattern string
	contactPattern string

	maxPingAttempts   int
	retryPingAttempts int
	pingInterval      time.Duration
	installSettle     time.Duration

	mu      sync.Mutex
	session *models.Session
	runDone chan struct{}
}

// NewService creates the session controller. The delay policy is injected
// so tests can run without the humanized pause.
func NewService(
	transport interfaces.Transport,
	navigator interfaces.Navigator,
	installer interfaces.AgentInstaller,
	events interfaces.EventService,
	delay DelayPolicy,
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	if delay == nil {
		delay = HumanizedDelay(
			common.ParseDurationOr(config.Session.HumanDelayMin, 2*time.Second),
			common.ParseDurationOr(config.Session.HumanDelayMax, 4*time.Second),
		)
	}

	return &Service{
		transport:         transport,
		navigator:         navigator,
		installer:         installer,
		events:            events,
		delay:             delay,
		logger:            logger,
		profilePattern:    config.Session.ProfileURLPattern,
		contactPattern:    config.Session.ContactInfoPattern,
		maxPingAttempts:   config.Readiness.MaxPingAttempts,
		retryPingAttempts: config.Readiness.RetryPingAttempts,
		pingInterval:      common.ParseDurationOr(config.Readiness.PingInterval, 200*time.Millisecond),
		installSettle:     common.ParseDurationOr(config.Readiness.InstallSettle, 500*time.Millisecond),
	}
}

// Start begins a collection run for targetID. While a run is in flight it
// returns models.ErrSessionBusy and leaves the running session untouched.
func (s *Service) Start(ctx context.Context, targetID string) (*models.SessionReport, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, fmt.Errorf("target id is required")
	}

	s.mu.Lock()
	if s.session != nil && !s.session.Status.Terminal() {
		s.mu.Unlock()
		return nil, models.ErrSessionBusy
	}

	session := models.NewSession(uuid.New().String(), targetID)
	done := make(chan struct{})
	s.session = session
	s.runDone = done
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", session.ID).
		Str("target_id", targetID).
		Msg("Collection session started")

	s.publish(interfaces.EventSessionStarted, map[string]interface{}{
		"session_id": session.ID,
		"target_id":  targetID,
	})

	go func() {
		defer close(done)
		s.run(session)
	}()

	return s.Status(), nil
}

// Status returns a snapshot of the current session, or an idle report when
// none has run yet.
func (s *Service) Status() *models.SessionReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return &models.SessionReport{Status: models.SessionStatusIdle}
	}
	return s.session.Report()
}

// Wait returns a channel closed when the current run's goroutine exits.
// Used by shutdown and by tests; never nil.
func (s *Service) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runDone == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.runDone
}

// run drives one session from Running to a terminal state. It uses its own
// context: the session outlives the HTTP request that started it.
func (s *Service) run(session *models.Session) {
	ctx := context.Background()

	// navigated tracks whether the tab left the original location. Failures
	// before any navigation need no restoration.
	navigated := false

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("session_id", session.ID).Msg(fmt.Sprintf("Session panicked: %v", r))
			s.restore(ctx, session, navigated)
			s.fail(session, fmt.Errorf("internal failure: %v", r))
		}
	}()

	s.progress(session, fmt.Sprintf("Starting collection for %s", session.TargetID))

	location, err := s.navigator.CurrentLocation(ctx)
	if err != nil {
		s.fail(session, fmt.Errorf("failed to record original location: %w", err))
		return
	}
	s.withLock(func() { session.OriginalLocation = location })

	// Bring the tab to the main profile page unless it is already there.
	profileURL := fmt.Sprintf(s.profilePattern, session.TargetID)
	if location != profileURL {
		s.progress(session, "Opening profile page")
		// The navigation is issued before its outcome is known, so the tab
		// has left the original location even when the load then stalls.
		navigated = true
		if err := s.gotoPage(ctx, profileURL); err != nil {
			s.restore(ctx, session, navigated)
			s.fail(session, fmt.Errorf("failed to open profile page: %w", err))
			return
		}
	}

	s.progress(session, "Connecting to page agent")
	if !s.ensureReady(ctx) {
		s.restore(ctx, session, navigated)
		s.fail(session, models.ErrConnection)
		return
	}

	s.progress(session, "Reading main profile page")
	main, err := s.scrapeMain(ctx)
	if err != nil {
		s.restore(ctx, session, navigated)
		s.fail(session, err)
		return
	}

	s.withLock(func() {
		session.Aggregate.Profile = main.Profile
		for key, value := range main.Inline {
			session.Aggregate.Merge(key, value)
		}
		session.Queue = append([]models.SectionTask(nil), main.Queue...)
	})

	// Work the queue head-first. A section that fails readiness, navigation
	// or extraction is skipped; the session continues with the rest.
	for {
		s.mu.Lock()
		if len(session.Queue) == 0 {
			s.mu.Unlock()
			break
		}
		task := session.Queue[0]
		session.Queue = session.Queue[1:]
		s.mu.Unlock()

		s.progress(session, fmt.Sprintf("Collecting %s", task.Key))
		s.collectSection(ctx, session, task)
		navigated = true
	}

	// The contact overlay is a fixed URL derived from the target, never
	// part of the queue the main page produced.
	if !session.Aggregate.Has(models.SectionContactInfo) {
		s.progress(session, "Collecting contact info")
		s.collectSection(ctx, session, models.SectionTask{
			Key: models.SectionContactInfo,
			URL: fmt.Sprintf(s.contactPattern, session.TargetID),
		})
		navigated = true
	}

	s.restore(ctx, session, navigated)
	s.complete(session)
}

// scrapeMain asks the agent for the main page's profile and section plan.
// A reachable agent that yields no profile is the one session-fatal scrape.
func (s *Service) scrapeMain(ctx context.Context) (*models.MainResult, error) {
	resp, err := s.transport.Send(ctx, models.Message{Action: models.ActionScrapeMain}, interfaces.SendOptions{Retry: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMainScrapeFailed, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", models.ErrMainScrapeFailed, resp.Error)
	}
	if resp.Main == nil || resp.Main.Profile.IsEmpty() {
		return nil, models.ErrMainScrapeFailed
	}
	return resp.Main, nil
}

// collectSection navigates to one section page, waits for it to load,
// pauses, confirms the agent and extracts the section. Every failure mode
// skips the section rather than aborting the session.
func (s *Service) collectSection(ctx context.Context, session *models.Session, task models.SectionTask) {
	if err := s.gotoPage(ctx, task.URL); err != nil {
		s.logger.Warn().
			Str("section", string(task.Key)).
			Err(err).
			Msg("Section skipped, page did not load")
		return
	}

	if err := s.delay(ctx); err != nil {
		return
	}

	if !s.ensureReady(ctx) {
		s.logger.Warn().
			Str("section", string(task.Key)).
			Msg("Section skipped, page agent unreachable")
		return
	}

	resp, err := s.transport.Send(ctx,
		models.Message{Action: models.ActionScrapeSection, Key: task.Key},
		interfaces.SendOptions{Retry: true},
	)
	if err != nil {
		s.logger.Warn().
			Str("section", string(task.Key)).
			Err(err).
			Msg("Section skipped, extraction request failed")
		return
	}
	if resp.Error != "" {
		s.logger.Warn().
			Str("section", string(task.Key)).
			Str("agent_error", resp.Error).
			Msg("Section skipped, agent reported extraction error")
		return
	}
	if resp.Data == nil {
		return
	}

	s.withLock(func() {
		session.Aggregate.Merge(task.Key, resp.Data)
	})
}

// gotoPage issues a navigation and waits for its load to complete.
func (s *Service) gotoPage(ctx context.Context, url string) error {
	if err := s.navigator.Navigate(ctx, url); err != nil {
		return err
	}
	return s.navigator.WaitLoadComplete(ctx)
}

// restore navigates the tab back to the session's original location. Best
// effort: a failed restore is logged, never escalated.
func (s *Service) restore(ctx context.Context, session *models.Session, navigated bool) {
	if !navigated || session.OriginalLocation == "" {
		return
	}

	s.progress(session, "Returning to original page")
	if err := s.gotoPage(ctx, session.OriginalLocation); err != nil {
		s.logger.Warn().
			Str("original_location", session.OriginalLocation).
			Err(err).
			Msg("Failed to restore original location")
	}
}

// complete moves the session to Done and publishes the flattened aggregate.
func (s *Service) complete(session *models.Session) {
	s.withLock(func() {
		session.Status = models.SessionStatusDone
		session.FinishedAt = time.Now()
		session.LastMessage = "Collection complete"
	})

	s.logger.Info().
		Str("session_id", session.ID).
		Str("target_id", session.TargetID).
		Int("sections", len(session.Aggregate.Sections)).
		Msg("Collection session complete")

	s.publish(interfaces.EventSessionComplete, map[string]interface{}{
		"session_id": session.ID,
		"target_id":  session.TargetID,
		"data":       session.Aggregate.Flatten(),
	})
}

// fail moves the session to Error and publishes the terminal error.
func (s *Service) fail(session *models.Session, err error) {
	s.withLock(func() {
		session.Status = models.SessionStatusError
		session.FinishedAt = time.Now()
		session.Error = err.Error()
	})

	s.logger.Error().
		Str("session_id", session.ID).
		Str("target_id", session.TargetID).
		Err(err).
		Msg("Collection session failed")

	s.publish(interfaces.EventSessionError, map[string]interface{}{
		"session_id": session.ID,
		"target_id":  session.TargetID,
		"error":      err.Error(),
	})
}

// progress records and broadcasts a step description.
func (s *Service) progress(session *models.Session, message string) {
	s.withLock(func() { session.LastMessage = message })
	s.logger.Info().Str("session_id", session.ID).Msg(message)

	s.publish(interfaces.EventSessionProgress, map[string]interface{}{
		"session_id": session.ID,
		"message":    message,
	})
}

// withLock runs fn under the snapshot mutex.
func (s *Service) withLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// publish emits an event synchronously so consumers observe session events
// in the order the controller produced them.
func (s *Service) publish(eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSync(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Str("event", string(eventType)).Err(err).Msg("Event publish failed")
	}
}
