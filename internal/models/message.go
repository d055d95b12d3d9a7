package models

import "time"

// Action is the command tag carried by a transport message.
type Action string

const (
	// ActionPing probes agent liveness. A reply is the liveness signal; the
	// absence of one is an expected condition, not an error worth logging.
	ActionPing Action = "ping"

	// ActionScrapeMain reads the document-level fields of the main page and
	// enumerates the remaining per-section work.
	ActionScrapeMain Action = "scrapeMain"

	// ActionScrapeSection extracts one named section, assuming the current
	// page is that section's dedicated page.
	ActionScrapeSection Action = "scrapeSection"
)

// Message is the wire unit exchanged between controller and page agent.
type Message struct {
	Action Action     `json:"action"`
	Key    SectionKey `json:"key,omitempty"`
}

// StatusAlive is the status value a live agent answers pings with.
const StatusAlive = "alive"

// MainResult is the scrapeMain response body: the partial profile read from
// the main page, the sections extracted inline because the page already held
// their full data, and the queue of sections requiring navigation.
type MainResult struct {
	Profile Profile                     `json:"profile"`
	Inline  map[SectionKey]SectionValue `json:"inline,omitempty"`
	Queue   []SectionTask               `json:"queue"`
}

// Response is the reply to a Message. Exactly one of Status, Main, Data or
// Error is populated depending on the action and outcome.
type Response struct {
	Status string       `json:"status,omitempty"`
	Main   *MainResult  `json:"main,omitempty"`
	Data   SectionValue `json:"data,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// PageSnapshot is the rendered state of the observed document at the moment
// a page agent is installed: the resolved location plus the full DOM as HTML.
type PageSnapshot struct {
	Location   string    `json:"location"`
	HTML       string    `json:"html"`
	CapturedAt time.Time `json:"captured_at"`
}
