package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

// Navigator implements interfaces.Navigator over the browser tab.
//
// The load-complete signal is armed by Navigate before the navigation is
// issued and resolved by the first Page.loadEventFired afterwards, so a load
// that finishes before WaitLoadComplete is called is not missed. The wait is
// bounded: a navigation that never settles surfaces as a stall error rather
// than suspending the session indefinitely.
type Navigator struct {
	browser     *Browser
	logger      arbor.ILogger
	loadTimeout time.Duration

	// onNavigate runs before every navigation. The app wires it to unbind
	// the page agent, since navigating destroys the document it was reading.
	onNavigate func()

	mu        sync.Mutex
	loadCh    chan struct{}
	listening bool
}

// NewNavigator creates a navigator for the browser's tab.
func NewNavigator(b *Browser, config common.BrowserConfig, onNavigate func(), logger arbor.ILogger) *Navigator {
	return &Navigator{
		browser:     b,
		logger:      logger,
		loadTimeout: common.ParseDurationOr(config.LoadTimeout, 45*time.Second),
		onNavigate:  onNavigate,
	}
}

// ensureListener installs the CDP event listener once per tab.
func (n *Navigator) ensureListener() {
	if n.listening {
		return
	}
	n.listening = true

	chromedp.ListenTarget(n.browser.Tab(), func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			n.signalLoad()
		}
	})
}

// signalLoad resolves the armed load signal, if any. One-shot: the channel
// is cleared so later load events do not leak into the next wait.
func (n *Navigator) signalLoad() {
	n.mu.Lock()
	ch := n.loadCh
	n.loadCh = nil
	n.mu.Unlock()

	if ch != nil {
		close(ch)
	}
}

// Navigate arms the load signal, detaches the current page agent and points
// the tab at url. It returns once the navigation is issued, not loaded.
func (n *Navigator) Navigate(ctx context.Context, url string) error {
	n.mu.Lock()
	n.ensureListener()
	n.loadCh = make(chan struct{})
	n.mu.Unlock()

	if n.onNavigate != nil {
		n.onNavigate()
	}

	n.logger.Debug().Str("url", url).Msg("Navigating")

	err := chromedp.Run(n.browser.Tab(), chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("navigation refused: %s", errText)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitLoadComplete blocks until the load armed by the last Navigate fires.
// Returns models.ErrNavigationStall when the configured deadline passes
// first, and nil immediately when no navigation is pending.
func (n *Navigator) WaitLoadComplete(ctx context.Context) error {
	n.mu.Lock()
	ch := n.loadCh
	n.mu.Unlock()

	if ch == nil {
		return nil
	}

	timer := time.NewTimer(n.loadTimeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		n.logger.Warn().
			Dur("load_timeout", n.loadTimeout).
			Msg("Load completion not observed before deadline")
		return models.ErrNavigationStall
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentLocation returns the tab's current URL.
func (n *Navigator) CurrentLocation(ctx context.Context) (string, error) {
	var location string
	if err := chromedp.Run(n.browser.Tab(), chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read current location: %w", err)
	}
	return location, nil
}

// Snapshot captures the rendered DOM and location of the current page.
func (n *Navigator) Snapshot(ctx context.Context) (*models.PageSnapshot, error) {
	var html, location string
	err := chromedp.Run(n.browser.Tab(),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}

	return &models.PageSnapshot{
		Location:   location,
		HTML:       html,
		CapturedAt: time.Now(),
	}, nil
}
