package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// sentMessage records one transport send and the options it carried.
type sentMessage struct {
	msg  models.Message
	opts interfaces.SendOptions
}

// fakeTransport scripts transport replies per action. Ping replies are
// consumed from pingScript in order, falling back to pingDefault.
type fakeTransport struct {
	mu          sync.Mutex
	sends       []sentMessage
	pingScript  []bool
	pingDefault bool
	mainResp    *models.Response
	mainErr     error
	sections    map[models.SectionKey]*models.Response
	gate        chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		pingDefault: true,
		sections:    make(map[models.SectionKey]*models.Response),
	}
}

func (t *fakeTransport) Send(ctx context.Context, msg models.Message, opts interfaces.SendOptions) (*models.Response, error) {
	if t.gate != nil {
		<-t.gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends = append(t.sends, sentMessage{msg: msg, opts: opts})

	switch msg.Action {
	case models.ActionPing:
		alive := t.pingDefault
		if len(t.pingScript) > 0 {
			alive = t.pingScript[0]
			t.pingScript = t.pingScript[1:]
		}
		if !alive {
			return nil, models.NewRecoverableDelivery(models.ErrAgentUnavailable)
		}
		return &models.Response{Status: models.StatusAlive}, nil

	case models.ActionScrapeMain:
		if t.mainErr != nil {
			return nil, t.mainErr
		}
		return t.mainResp, nil

	case models.ActionScrapeSection:
		if resp, ok := t.sections[msg.Key]; ok {
			return resp, nil
		}
		return &models.Response{Error: "unknown section"}, nil
	}
	return nil, models.NewDeliveryFailure(models.ErrAgentUnavailable)
}

func (t *fakeTransport) sentMessages() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sends...)
}

func (t *fakeTransport) sectionSends() []models.SectionKey {
	var keys []models.SectionKey
	for _, s := range t.sentMessages() {
		if s.msg.Action == models.ActionScrapeSection {
			keys = append(keys, s.msg.Key)
		}
	}
	return keys
}

// fakeNavigator tracks navigations and serves the current location.
// loadErrs scripts WaitLoadComplete outcomes per destination URL.
type fakeNavigator struct {
	mu          sync.Mutex
	location    string
	navigations []string
	loadErrs    map[string]error
}

func (n *fakeNavigator) Navigate(ctx context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.navigations = append(n.navigations, url)
	n.location = url
	return nil
}

func (n *fakeNavigator) WaitLoadComplete(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loadErrs[n.location]
}

func (n *fakeNavigator) CurrentLocation(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location, nil
}

func (n *fakeNavigator) Snapshot(ctx context.Context) (*models.PageSnapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &models.PageSnapshot{Location: n.location, HTML: "<html></html>", CapturedAt: time.Now()}, nil
}

func (n *fakeNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.navigations...)
}

// fakeInstaller counts installs and runs an optional hook per install.
type fakeInstaller struct {
	mu        sync.Mutex
	installs  int
	onInstall func()
}

func (i *fakeInstaller) Install(ctx context.Context) error {
	i.mu.Lock()
	i.installs++
	hook := i.onInstall
	i.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (i *fakeInstaller) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.installs
}

// recordingEvents captures every published event in order.
type recordingEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (e *recordingEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) error { return nil }

func (e *recordingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	return e.PublishSync(ctx, event)
}

func (e *recordingEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEvents) Close() error { return nil }

func (e *recordingEvents) ofType(eventType interfaces.EventType) []interfaces.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var matched []interfaces.Event
	for _, ev := range e.events {
		if ev.Type == eventType {
			matched = append(matched, ev)
		}
	}
	return matched
}

func testConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Session.ProfileURLPattern = "https://example.test/in/%s/"
	cfg.Session.ContactInfoPattern = "https://example.test/in/%s/contact/"
	cfg.Readiness.PingInterval = "1ms"
	cfg.Readiness.InstallSettle = "1ms"
	return cfg
}

func newTestService(tr *fakeTransport, nav *fakeNavigator, inst *fakeInstaller) (*Service, *recordingEvents) {
	events := &recordingEvents{}
	svc := NewService(tr, nav, inst, events, NoDelay(), testConfig(), common.GetLogger())
	return svc, events
}

func mainResult(queue ...models.SectionTask) *models.Response {
	return &models.Response{
		Main: &models.MainResult{
			Profile: models.Profile{
				Name:     "Jane Doe",
				Headline: "Staff Engineer",
				Location: "Berlin, Germany",
			},
			Queue: queue,
		},
	}
}

func waitDone(t *testing.T, svc *Service) {
	t.Helper()
	select {
	case <-svc.Wait():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

func TestStartRequiresTargetID(t *testing.T) {
	svc, _ := newTestService(newFakeTransport(), &fakeNavigator{}, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "  ")
	assert.Error(t, err)
	assert.Equal(t, models.SessionStatusIdle, svc.Status().Status)
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	tr := newFakeTransport()
	tr.gate = make(chan struct{})
	tr.mainResp = mainResult()

	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	svc, _ := newTestService(tr, nav, &fakeInstaller{})

	first, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusRunning, first.Status)

	_, err = svc.Start(context.Background(), "other-target")
	assert.ErrorIs(t, err, models.ErrSessionBusy)

	// The rejected start must not have touched the running session.
	status := svc.Status()
	assert.Equal(t, first.ID, status.ID)
	assert.Equal(t, "jane-doe", status.TargetID)
	assert.Equal(t, models.SessionStatusRunning, status.Status)

	close(tr.gate)
	waitDone(t, svc)
	assert.Equal(t, models.SessionStatusDone, svc.Status().Status)
}

func TestStartAllowedAfterTerminalSession(t *testing.T) {
	tr := newFakeTransport()
	tr.mainResp = mainResult()
	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	svc, _ := newTestService(tr, nav, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)
	require.Equal(t, models.SessionStatusDone, svc.Status().Status)

	second, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)
	assert.NotEqual(t, second.ID, "")
}

func TestReadinessShortCircuitsOnFirstPing(t *testing.T) {
	tr := newFakeTransport()
	tr.mainResp = mainResult()
	// Contact info arrives inline so the run stays on the main page and
	// performs exactly one readiness check.
	tr.mainResp.Main.Inline = map[models.SectionKey]models.SectionValue{
		models.SectionContactInfo: models.ContactInfo{Email: "jane@example.test"},
	}
	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	inst := &fakeInstaller{}
	svc, _ := newTestService(tr, nav, inst)

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	assert.Equal(t, 0, inst.count())

	pings := 0
	for _, s := range tr.sentMessages() {
		if s.msg.Action == models.ActionPing {
			pings++
			assert.True(t, s.opts.Quiet, "pings must be quiet")
			assert.False(t, s.opts.Retry, "pings must not retry")
		}
	}
	assert.Equal(t, 1, pings)
}

func TestReadinessReinstallsAfterExhaustedPings(t *testing.T) {
	tr := newFakeTransport()
	tr.mainResp = mainResult()
	tr.mainResp.Main.Inline = map[models.SectionKey]models.SectionValue{
		models.SectionContactInfo: models.ContactInfo{Email: "jane@example.test"},
	}
	tr.pingDefault = false
	tr.pingScript = make([]bool, 0)

	inst := &fakeInstaller{}
	inst.onInstall = func() {
		tr.mu.Lock()
		tr.pingDefault = true
		tr.mu.Unlock()
	}

	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	svc, _ := newTestService(tr, nav, inst)

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	require.Equal(t, models.SessionStatusDone, svc.Status().Status)
	assert.Equal(t, 1, inst.count())

	// Ten failed pings, one reinstall, then the first retry ping answers.
	pings := 0
	for _, s := range tr.sentMessages() {
		if s.msg.Action == models.ActionPing {
			pings++
		}
	}
	assert.Equal(t, 11, pings)
}

func TestConnectionErrorWhenAgentNeverAnswers(t *testing.T) {
	tr := newFakeTransport()
	tr.pingDefault = false
	inst := &fakeInstaller{}
	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	svc, events := newTestService(tr, nav, inst)

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	status := svc.Status()
	assert.Equal(t, models.SessionStatusError, status.Status)
	assert.Equal(t, models.ErrConnection.Error(), status.Error)
	assert.Equal(t, 1, inst.count())

	// Full protocol: ten pings, reinstall, five more pings.
	pings := 0
	for _, s := range tr.sentMessages() {
		if s.msg.Action == models.ActionPing {
			pings++
		}
	}
	assert.Equal(t, 15, pings)
	assert.Len(t, events.ofType(interfaces.EventSessionError), 1)
	assert.Empty(t, events.ofType(interfaces.EventSessionComplete))
}

func TestMainScrapeFailureIsFatal(t *testing.T) {
	tr := newFakeTransport()
	tr.mainResp = &models.Response{Error: "document changed under us"}
	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	svc, events := newTestService(tr, nav, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	status := svc.Status()
	assert.Equal(t, models.SessionStatusError, status.Status)
	assert.Contains(t, status.Error, models.ErrMainScrapeFailed.Error())

	// No section work and, since the tab never left the profile page,
	// no restoration navigation either.
	assert.Empty(t, tr.sectionSends())
	assert.Empty(t, nav.visited())
	assert.Len(t, events.ofType(interfaces.EventSessionError), 1)
}

func TestQueueProcessedInOrder(t *testing.T) {
	tr := newFakeTransport()
	tr.mainResp = mainResult(
		models.SectionTask{Key: models.SectionExperience, URL: "https://example.test/in/jane-doe/details/experience/"},
		models.SectionTask{Key: models.SectionEducation, URL: "https://example.test/in/jane-doe/details/education/"},
		models.SectionTask{Key: models.SectionSkills, URL: "https://example.test/in/jane-doe/details/skills/"},
	)
	tr.sections[models.SectionExperience] = &models.Response{Data: []models.Experience{{Title: "Engineer", Company: "Acme"}}}
	tr.sections[models.SectionEducation] = &models.Response{Data: []models.Education{{School: "TU Berlin"}}}
	tr.sections[models.SectionSkills] = &models.Response{Data: []string{"Go", "Distributed Systems"}}
	tr.sections[models.SectionContactInfo] = &models.Response{Data: models.ContactInfo{Email: "jane@example.test"}}

	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	svc, _ := newTestService(tr, nav, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	require.Equal(t, models.SessionStatusDone, svc.Status().Status)

	assert.Equal(t, []models.SectionKey{
		models.SectionExperience,
		models.SectionEducation,
		models.SectionSkills,
		models.SectionContactInfo,
	}, tr.sectionSends())

	assert.Equal(t, []string{
		"https://example.test/in/jane-doe/details/experience/",
		"https://example.test/in/jane-doe/details/education/",
		"https://example.test/in/jane-doe/details/skills/",
		"https://example.test/in/jane-doe/contact/",
		"https://example.test/in/jane-doe/",
	}, nav.visited())

	for _, s := range tr.sentMessages() {
		if s.msg.Action == models.ActionScrapeSection {
			assert.True(t, s.opts.Retry, "section requests must carry the retry option")
		}
	}
}

func TestSectionSkippedWhenAgentUnreachable(t *testing.T) {
	tr := newFakeTransport()
	tr.mainResp = mainResult(
		models.SectionTask{Key: models.SectionExperience, URL: "https://example.test/in/jane-doe/details/experience/"},
		models.SectionTask{Key: models.SectionEducation, URL: "https://example.test/in/jane-doe/details/education/"},
		models.SectionTask{Key: models.SectionSkills, URL: "https://example.test/in/jane-doe/details/skills/"},
	)
	tr.sections[models.SectionExperience] = &models.Response{Data: []models.Experience{{Title: "Engineer", Company: "Acme"}}}
	tr.sections[models.SectionSkills] = &models.Response{Data: []string{"Go"}}
	tr.sections[models.SectionContactInfo] = &models.Response{Data: models.ContactInfo{Email: "jane@example.test"}}

	// Ping script: main page alive, experience alive, education unreachable
	// through the whole protocol (10 + 5 with a no-op reinstall between),
	// then skills and contact alive again.
	tr.pingScript = append([]bool{true, true}, make([]bool, 15)...)
	tr.pingDefault = true

	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	svc, events := newTestService(tr, nav, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	// The unreachable section is skipped, not fatal.
	require.Equal(t, models.SessionStatusDone, svc.Status().Status)
	assert.Equal(t, []models.SectionKey{
		models.SectionExperience,
		models.SectionSkills,
		models.SectionContactInfo,
	}, tr.sectionSends())

	completes := events.ofType(interfaces.EventSessionComplete)
	require.Len(t, completes, 1)
	data := completes[0].Payload.(map[string]interface{})["data"].(map[string]interface{})
	assert.Contains(t, data, "experience")
	assert.Contains(t, data, "skills")
	assert.NotContains(t, data, "education")
}

func TestSectionSkippedWhenLoadStalls(t *testing.T) {
	tr := newFakeTransport()
	tr.mainResp = mainResult(
		models.SectionTask{Key: models.SectionExperience, URL: "https://example.test/in/jane-doe/details/experience/"},
		models.SectionTask{Key: models.SectionEducation, URL: "https://example.test/in/jane-doe/details/education/"},
	)
	tr.sections[models.SectionEducation] = &models.Response{Data: []models.Education{{School: "TU Berlin"}}}
	tr.sections[models.SectionContactInfo] = &models.Response{Data: models.ContactInfo{Email: "jane@example.test"}}

	// The experience page never finishes loading. The session skips it and
	// carries on with the rest of the queue.
	nav := &fakeNavigator{
		location: "https://example.test/in/jane-doe/",
		loadErrs: map[string]error{
			"https://example.test/in/jane-doe/details/experience/": models.ErrNavigationStall,
		},
	}
	svc, events := newTestService(tr, nav, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	require.Equal(t, models.SessionStatusDone, svc.Status().Status)
	assert.Equal(t, []models.SectionKey{
		models.SectionEducation,
		models.SectionContactInfo,
	}, tr.sectionSends())

	completes := events.ofType(interfaces.EventSessionComplete)
	require.Len(t, completes, 1)
	data := completes[0].Payload.(map[string]interface{})["data"].(map[string]interface{})
	assert.Contains(t, data, "education")
	assert.NotContains(t, data, "experience")
}

func TestRestoresLocationWhenProfilePageStalls(t *testing.T) {
	tr := newFakeTransport()
	tr.mainResp = mainResult()

	// The tab starts away from the profile page and the profile page itself
	// never finishes loading. The run is fatal but must still bring the tab
	// back where it started.
	nav := &fakeNavigator{
		location: "https://example.test/feed/",
		loadErrs: map[string]error{
			"https://example.test/in/jane-doe/": models.ErrNavigationStall,
		},
	}
	svc, events := newTestService(tr, nav, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	status := svc.Status()
	assert.Equal(t, models.SessionStatusError, status.Status)
	assert.Contains(t, status.Error, models.ErrNavigationStall.Error())

	visited := nav.visited()
	require.NotEmpty(t, visited)
	assert.Equal(t, "https://example.test/in/jane-doe/", visited[0])
	assert.Equal(t, "https://example.test/feed/", visited[len(visited)-1])

	assert.Len(t, events.ofType(interfaces.EventSessionError), 1)
	assert.Empty(t, events.ofType(interfaces.EventSessionComplete))
}

func TestCompleteEventCarriesFlattenedAggregate(t *testing.T) {
	tr := newFakeTransport()
	resp := mainResult(
		models.SectionTask{Key: models.SectionExperience, URL: "https://example.test/in/jane-doe/details/experience/"},
	)
	resp.Main.Inline = map[models.SectionKey]models.SectionValue{
		models.SectionLanguages: []string{"English", "German"},
	}
	tr.mainResp = resp
	tr.sections[models.SectionExperience] = &models.Response{Data: []models.Experience{{Title: "Engineer", Company: "Acme"}}}
	tr.sections[models.SectionContactInfo] = &models.Response{Data: models.ContactInfo{Email: "jane@example.test"}}

	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	svc, events := newTestService(tr, nav, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	completes := events.ofType(interfaces.EventSessionComplete)
	require.Len(t, completes, 1)

	payload := completes[0].Payload.(map[string]interface{})
	assert.Equal(t, "jane-doe", payload["target_id"])

	data := payload["data"].(map[string]interface{})
	assert.Equal(t, "Jane Doe", data["name"])
	assert.Equal(t, "Staff Engineer", data["headline"])
	assert.Contains(t, data, "languages")
	assert.Contains(t, data, "experience")
	assert.Contains(t, data, "contactInfo")
}

func TestSingleSectionRunEndToEnd(t *testing.T) {
	tr := newFakeTransport()
	resp := mainResult(
		models.SectionTask{Key: models.SectionEducation, URL: "https://example.test/edu"},
	)
	resp.Main.Inline = map[models.SectionKey]models.SectionValue{
		models.SectionContactInfo: models.ContactInfo{Email: "jane@example.test"},
	}
	tr.mainResp = resp
	tr.sections[models.SectionEducation] = &models.Response{Data: []models.Education{{School: "MIT"}}}

	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	svc, events := newTestService(tr, nav, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	require.Equal(t, models.SessionStatusDone, svc.Status().Status)

	completes := events.ofType(interfaces.EventSessionComplete)
	require.Len(t, completes, 1)
	data := completes[0].Payload.(map[string]interface{})["data"].(map[string]interface{})
	assert.Equal(t, "Jane Doe", data["name"])
	assert.Equal(t, []models.Education{{School: "MIT"}}, data["education"])

	// The tab ends back where the session found it.
	visited := nav.visited()
	require.NotEmpty(t, visited)
	assert.Equal(t, "https://example.test/in/jane-doe/", visited[len(visited)-1])
}

func TestRestoresOriginalLocationAfterRun(t *testing.T) {
	tr := newFakeTransport()
	tr.mainResp = mainResult(
		models.SectionTask{Key: models.SectionSkills, URL: "https://example.test/in/jane-doe/details/skills/"},
	)
	tr.sections[models.SectionSkills] = &models.Response{Data: []string{"Go"}}
	tr.sections[models.SectionContactInfo] = &models.Response{Data: models.ContactInfo{Email: "jane@example.test"}}

	// The tab starts away from the profile page, so the run opens it first
	// and must come back here at the end.
	nav := &fakeNavigator{location: "https://example.test/feed/"}
	svc, _ := newTestService(tr, nav, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	visited := nav.visited()
	require.NotEmpty(t, visited)
	assert.Equal(t, "https://example.test/in/jane-doe/", visited[0])
	assert.Equal(t, "https://example.test/feed/", visited[len(visited)-1])
}

func TestProgressEventsDescribeSteps(t *testing.T) {
	tr := newFakeTransport()
	tr.mainResp = mainResult()
	nav := &fakeNavigator{location: "https://example.test/in/jane-doe/"}
	svc, events := newTestService(tr, nav, &fakeInstaller{})

	_, err := svc.Start(context.Background(), "jane-doe")
	require.NoError(t, err)
	waitDone(t, svc)

	var messages []string
	for _, ev := range events.ofType(interfaces.EventSessionProgress) {
		messages = append(messages, ev.Payload.(map[string]interface{})["message"].(string))
	}
	require.NotEmpty(t, messages)
	assert.True(t, strings.HasPrefix(messages[0], "Starting collection"))
	assert.Contains(t, messages, "Reading main profile page")
}
