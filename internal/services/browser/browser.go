package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
)

// Browser owns the Chrome instance and the single tab the collector drives.
// One observed document at a time is deliberate: navigation and extraction
// both require the tab exclusively, so nothing here is pooled.
type Browser struct {
	config common.BrowserConfig
	logger arbor.ILogger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewBrowser creates an unstarted browser wrapper.
func NewBrowser(config common.BrowserConfig, logger arbor.ILogger) *Browser {
	return &Browser{
		config: config,
		logger: logger,
	}
}

// Start launches Chrome and opens the tab, verifying it responds.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return fmt.Errorf("browser already started")
	}

	startTime := time.Now()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", b.config.Headless),
		chromedp.Flag("disable-gpu", b.config.DisableGPU),
		chromedp.Flag("no-sandbox", b.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.UserAgent(b.config.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	if b.config.UserDataDir != "" {
		// Reusing a profile directory keeps the target site's login session.
		opts = append(opts, chromedp.UserDataDir(b.config.UserDataDir))
	}

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	b.tabCtx, b.tabCancel = chromedp.NewContext(b.allocCtx)

	// Startup test: a tab that cannot reach about:blank is not worth keeping.
	testCtx, testCancel := context.WithTimeout(b.tabCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		b.tabCancel()
		b.allocCancel()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	b.started = true
	b.logger.Info().
		Bool("headless", b.config.Headless).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser started")

	return nil
}

// Tab returns the chromedp context of the observed tab.
func (b *Browser) Tab() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tabCtx
}

// Close shuts the tab and the Chrome instance down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}

	if b.tabCancel != nil {
		b.tabCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.started = false

	b.logger.Info().Msg("Browser closed")
	return nil
}
