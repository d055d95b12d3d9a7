package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
)

// Agent is the per-page command handler. It is bound to the document that was
// displayed when it was installed: it parses the rendered DOM snapshot once
// and answers commands against that parse. Navigation makes the snapshot
// stale, so the navigator tears the agent down and the readiness protocol
// installs a fresh one.
//
// Commands run on a single goroutine started by New; Handle is safe to call
// concurrently but commands are processed one at a time, matching the single
// observed document they all read.
type Agent struct {
	doc        *goquery.Document
	location   string
	extractors *ExtractorSet
	logger     arbor.ILogger

	cmds chan request
	done chan struct{}
}

type request struct {
	msg   models.Message
	reply chan result
}

type result struct {
	resp *models.Response
	err  error
}

// New parses the snapshot and starts the agent's command loop.
func New(snapshot *models.PageSnapshot, extractors *ExtractorSet, logger arbor.ILogger) (*Agent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page snapshot: %w", err)
	}

	a := &Agent{
		doc:        doc,
		location:   snapshot.Location,
		extractors: extractors,
		logger:     logger,
		cmds:       make(chan request),
		done:       make(chan struct{}),
	}
	go a.loop()

	logger.Debug().
		Str("location", snapshot.Location).
		Int("snapshot_bytes", len(snapshot.HTML)).
		Msg("Page agent installed")

	return a, nil
}

// loop processes commands until the agent is closed.
func (a *Agent) loop() {
	for {
		select {
		case <-a.done:
			return
		case req := <-a.cmds:
			resp := a.dispatch(req.msg)
			select {
			case req.reply <- result{resp: resp}:
			case <-a.done:
				return
			}
		}
	}
}

// Handle delivers one command to the agent loop and waits for its response.
// Implements interfaces.AgentHandler.
func (a *Agent) Handle(ctx context.Context, msg models.Message) (*models.Response, error) {
	req := request{msg: msg, reply: make(chan result, 1)}

	select {
	case <-a.done:
		return nil, models.ErrAgentClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case a.cmds <- req:
	}

	select {
	case <-a.done:
		return nil, models.ErrAgentClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-req.reply:
		return res.resp, res.err
	}
}

// Alive reports whether the agent still accepts commands.
func (a *Agent) Alive() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// Close stops the command loop. Idempotent.
func (a *Agent) Close() {
	select {
	case <-a.done:
		return
	default:
	}
	// A concurrent double-close is harmless here: closes race only with this
	// select, and the agent is closed by the registry under its own lock.
	close(a.done)
	a.logger.Debug().Str("location", a.location).Msg("Page agent closed")
}

// dispatch routes one command. Extractor panics and errors are caught here so
// a broken extractor reports {error} instead of killing the command loop.
func (a *Agent) dispatch(msg models.Message) *models.Response {
	switch msg.Action {
	case models.ActionPing:
		return &models.Response{Status: models.StatusAlive}

	case models.ActionScrapeMain:
		main, err := a.scrapeMain()
		if err != nil {
			return &models.Response{Error: err.Error()}
		}
		return &models.Response{Main: main}

	case models.ActionScrapeSection:
		return a.scrapeSection(msg.Key)

	default:
		return &models.Response{Error: fmt.Sprintf("unknown action: %s", msg.Action)}
	}
}

// scrapeSection extracts one named section, assuming the current page is that
// section's dedicated page. Unknown keys return an empty value rather than an
// error so the controller can continue.
func (a *Agent) scrapeSection(key models.SectionKey) (resp *models.Response) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn().
				Str("section", string(key)).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Section extractor panicked")
			resp = &models.Response{Error: fmt.Sprintf("extractor for %s panicked: %v", key, r)}
		}
	}()

	extract, ok := a.extractors.Get(key)
	if !ok {
		a.logger.Debug().
			Str("section", string(key)).
			Msg("No extractor registered for section, returning empty value")
		return &models.Response{Data: []string{}}
	}

	value, err := extract(a.doc)
	if err != nil {
		return &models.Response{Error: fmt.Sprintf("extractor for %s failed: %v", key, err)}
	}
	return &models.Response{Data: value}
}
