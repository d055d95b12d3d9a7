package agent

import (
	"fmt"
	"net/url"

	"github.com/ternarybob/colligo/internal/models"
)

// scrapeMain reads the document-level profile fields and enumerates the
// remaining per-section work. For every known section it decides locally
// whether the current page already holds the full data (inline case: extract
// now, skip the queue) or whether a dedicated full-list page exists
// (navigation case: emit a task pointing at that page).
func (a *Agent) scrapeMain() (*models.MainResult, error) {
	profile := models.Profile{
		Name:     cleanText(a.doc.Find("h1.profile-name").First().Text()),
		Headline: cleanText(a.doc.Find(".profile-headline").First().Text()),
		Location: cleanText(a.doc.Find(".profile-location").First().Text()),
		About:    cleanText(a.doc.Find("section[data-section='about'] .about-text").First().Text()),
		URL:      a.location,
	}

	if profile.IsEmpty() {
		return nil, fmt.Errorf("main page has no profile fields at %s", a.location)
	}

	base, err := url.Parse(a.location)
	if err != nil {
		base = nil
	}

	result := &models.MainResult{
		Profile: profile,
		Inline:  make(map[models.SectionKey]models.SectionValue),
		Queue:   make([]models.SectionTask, 0),
	}

	for _, key := range models.QueueableSectionKeys() {
		container := a.doc.Find(fmt.Sprintf("section[data-section='%s']", key))
		if container.Length() == 0 {
			continue
		}

		// Navigation case: a "see all" link means the page shows a truncated
		// preview and the full list lives on a dedicated page.
		if href, ok := container.Find("a.see-all").First().Attr("href"); ok && href != "" {
			result.Queue = append(result.Queue, models.SectionTask{
				Key: key,
				URL: resolveHref(base, href),
			})
			continue
		}

		// Inline case: the section is complete on this page, extract now.
		extract, ok := a.extractors.Get(key)
		if !ok {
			continue
		}
		value, err := extract(a.doc)
		if err != nil {
			a.logger.Warn().
				Err(err).
				Str("section", string(key)).
				Msg("Inline section extraction failed")
			continue
		}
		if value != nil {
			result.Inline[key] = value
		}
	}

	a.logger.Debug().
		Str("name", profile.Name).
		Int("inline_sections", len(result.Inline)).
		Int("queued_sections", len(result.Queue)).
		Msg("Main scrape finished")

	return result, nil
}

// resolveHref resolves href against the page location, falling back to the
// raw href when either side does not parse.
func resolveHref(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
