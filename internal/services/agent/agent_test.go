package agent

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
)

const mainPageHTML = `
<html><body>
  <h1 class="profile-name">Jane Doe</h1>
  <div class="profile-headline">Staff Engineer at Acme</div>
  <div class="profile-location">Berlin, Germany</div>
  <section data-section="about">
    <div class="about-text">Building distributed systems since 2012.</div>
  </section>
  <section data-section="experience">
    <ul>
      <li class="entry"><span class="entry-title">Staff Engineer</span><span class="entry-company">Acme</span></li>
    </ul>
    <a class="see-all" href="details/experience/">Show all 9 experiences</a>
  </section>
  <section data-section="skills">
    <ul>
      <li class="entry"><span class="entry-name">Go</span></li>
      <li class="entry"><span class="entry-name">Distributed Systems</span></li>
    </ul>
  </section>
</body></html>`

func newTestAgent(t *testing.T, html, location string) *Agent {
	t.Helper()

	snapshot := &models.PageSnapshot{
		Location:   location,
		HTML:       html,
		CapturedAt: time.Now(),
	}
	a, err := New(snapshot, NewDefaultExtractorSet(), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestPingRespondsAlive(t *testing.T) {
	a := newTestAgent(t, mainPageHTML, "https://example.test/in/jane-doe/")

	resp, err := a.Handle(context.Background(), models.Message{Action: models.ActionPing})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAlive, resp.Status)
}

func TestScrapeMainSplitsInlineAndQueue(t *testing.T) {
	a := newTestAgent(t, mainPageHTML, "https://example.test/in/jane-doe/")

	resp, err := a.Handle(context.Background(), models.Message{Action: models.ActionScrapeMain})
	require.NoError(t, err)
	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Main)

	assert.Equal(t, "Jane Doe", resp.Main.Profile.Name)
	assert.Equal(t, "Staff Engineer at Acme", resp.Main.Profile.Headline)
	assert.Equal(t, "Berlin, Germany", resp.Main.Profile.Location)
	assert.Equal(t, "Building distributed systems since 2012.", resp.Main.Profile.About)
	assert.Equal(t, "https://example.test/in/jane-doe/", resp.Main.Profile.URL)

	// Experience carries a see-all link, so it is queued with the href
	// resolved against the page location. Skills is complete inline.
	require.Len(t, resp.Main.Queue, 1)
	assert.Equal(t, models.SectionExperience, resp.Main.Queue[0].Key)
	assert.Equal(t, "https://example.test/in/jane-doe/details/experience/", resp.Main.Queue[0].URL)

	skills, ok := resp.Main.Inline[models.SectionSkills]
	require.True(t, ok)
	assert.Equal(t, []string{"Go", "Distributed Systems"}, skills)
	assert.NotContains(t, resp.Main.Inline, models.SectionExperience)
}

func TestScrapeMainFailsWithoutProfile(t *testing.T) {
	a := newTestAgent(t, "<html><body><p>Sign in to continue</p></body></html>", "https://example.test/in/jane-doe/")

	resp, err := a.Handle(context.Background(), models.Message{Action: models.ActionScrapeMain})
	require.NoError(t, err)
	assert.Nil(t, resp.Main)
	assert.NotEmpty(t, resp.Error)
}

func TestScrapeSectionOnSectionPage(t *testing.T) {
	sectionHTML := `
<html><body>
  <section data-section="education">
    <ul>
      <li class="entry"><span class="entry-school">TU Berlin</span><span class="entry-degree">MSc Computer Science</span></li>
      <li class="entry"><span class="entry-school">HU Berlin</span></li>
    </ul>
  </section>
</body></html>`
	a := newTestAgent(t, sectionHTML, "https://example.test/in/jane-doe/details/education/")

	resp, err := a.Handle(context.Background(), models.Message{Action: models.ActionScrapeSection, Key: models.SectionEducation})
	require.NoError(t, err)
	require.Empty(t, resp.Error)

	entries, ok := resp.Data.([]models.Education)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "TU Berlin", entries[0].School)
	assert.Equal(t, "MSc Computer Science", entries[0].Degree)
}

func TestScrapeSectionReportsExtractorError(t *testing.T) {
	a := newTestAgent(t, "<html><body></body></html>", "https://example.test/in/jane-doe/details/education/")

	resp, err := a.Handle(context.Background(), models.Message{Action: models.ActionScrapeSection, Key: models.SectionEducation})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Error)
	assert.Nil(t, resp.Data)
}

func TestScrapeSectionWithoutExtractorReturnsEmpty(t *testing.T) {
	snapshot := &models.PageSnapshot{Location: "https://example.test/", HTML: "<html></html>", CapturedAt: time.Now()}
	a, err := New(snapshot, NewExtractorSet(), arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	resp, err := a.Handle(context.Background(), models.Message{Action: models.ActionScrapeSection, Key: models.SectionSkills})
	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.Equal(t, []string{}, resp.Data)
}

func TestExtractorPanicIsContained(t *testing.T) {
	// An extractor that panics must report an error, not kill the loop.
	set := NewExtractorSet()
	set.Register(models.SectionSkills, func(doc *goquery.Document) (models.SectionValue, error) {
		panic("selector assumption violated")
	})

	snapshot := &models.PageSnapshot{Location: "https://example.test/", HTML: "<html></html>", CapturedAt: time.Now()}
	a, err := New(snapshot, set, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	resp, err := a.Handle(context.Background(), models.Message{Action: models.ActionScrapeSection, Key: models.SectionSkills})
	require.NoError(t, err)
	assert.Contains(t, resp.Error, "panicked")

	// The command loop must still be answering after the panic.
	resp, err = a.Handle(context.Background(), models.Message{Action: models.ActionPing})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAlive, resp.Status)
}

func TestCloseStopsHandling(t *testing.T) {
	a := newTestAgent(t, mainPageHTML, "https://example.test/in/jane-doe/")

	assert.True(t, a.Alive())
	a.Close()
	a.Close() // idempotent
	assert.False(t, a.Alive())

	_, err := a.Handle(context.Background(), models.Message{Action: models.ActionPing})
	assert.ErrorIs(t, err, models.ErrAgentClosed)
}

func TestUnknownActionReturnsError(t *testing.T) {
	a := newTestAgent(t, mainPageHTML, "https://example.test/in/jane-doe/")

	resp, err := a.Handle(context.Background(), models.Message{Action: "selfDestruct"})
	require.NoError(t, err)
	assert.Contains(t, resp.Error, "unknown action")
}
