package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/colligo/internal/models"
)

// ExtractorFunc turns the loaded document into one section's structured
// value. Extractors are selector-based and site-specific: they are the
// replaceable collaborator edge of the system, not part of the orchestration
// contract. An extractor may panic or error; the agent boundary catches both.
type ExtractorFunc func(doc *goquery.Document) (models.SectionValue, error)

// ExtractorSet maps section keys to their extractors.
type ExtractorSet struct {
	mu         sync.RWMutex
	extractors map[models.SectionKey]ExtractorFunc
}

// NewExtractorSet creates an empty extractor set.
func NewExtractorSet() *ExtractorSet {
	return &ExtractorSet{
		extractors: make(map[models.SectionKey]ExtractorFunc),
	}
}

// Register binds an extractor to a section key, replacing any previous one.
func (s *ExtractorSet) Register(key models.SectionKey, fn ExtractorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractors[key] = fn
}

// Get returns the extractor for key.
func (s *ExtractorSet) Get(key models.SectionKey) (ExtractorFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.extractors[key]
	return fn, ok
}

// NewDefaultExtractorSet registers the built-in selector-based extractors.
// Experience, education and contact info produce structured records; the
// remaining sections produce scalar lists.
func NewDefaultExtractorSet() *ExtractorSet {
	set := NewExtractorSet()

	set.Register(models.SectionExperience, extractExperience)
	set.Register(models.SectionVolunteering, extractVolunteering)
	set.Register(models.SectionEducation, extractEducation)
	set.Register(models.SectionContactInfo, extractContactInfo)

	for _, key := range []models.SectionKey{
		models.SectionLanguages,
		models.SectionSkills,
		models.SectionProjects,
		models.SectionCourses,
		models.SectionPublications,
		models.SectionPatents,
		models.SectionOrganizations,
	} {
		set.Register(key, scalarListExtractor(key))
	}

	return set
}

func extractExperience(doc *goquery.Document) (models.SectionValue, error) {
	return extractPositions(doc, models.SectionExperience)
}

func extractVolunteering(doc *goquery.Document) (models.SectionValue, error) {
	return extractPositions(doc, models.SectionVolunteering)
}

// extractPositions reads title/company/date/location entries from a section
// container. Shared by experience and volunteering, whose markup matches.
func extractPositions(doc *goquery.Document, key models.SectionKey) (models.SectionValue, error) {
	entries := make([]models.Experience, 0)
	sectionItems(doc, key).Each(func(_ int, item *goquery.Selection) {
		entry := models.Experience{
			Title:     cleanText(item.Find(".entry-title").First().Text()),
			Company:   cleanText(item.Find(".entry-company").First().Text()),
			DateRange: cleanText(item.Find(".entry-dates").First().Text()),
			Location:  cleanText(item.Find(".entry-location").First().Text()),
		}
		if entry.Title != "" || entry.Company != "" {
			entries = append(entries, entry)
		}
	})

	if len(entries) == 0 {
		return nil, fmt.Errorf("no %s entries found", key)
	}
	return entries, nil
}

func extractEducation(doc *goquery.Document) (models.SectionValue, error) {
	entries := make([]models.Education, 0)
	sectionItems(doc, models.SectionEducation).Each(func(_ int, item *goquery.Selection) {
		entry := models.Education{
			School: cleanText(item.Find(".entry-school").First().Text()),
			Degree: cleanText(item.Find(".entry-degree").First().Text()),
		}
		if entry.School != "" {
			entries = append(entries, entry)
		}
	})

	if len(entries) == 0 {
		return nil, fmt.Errorf("no education entries found")
	}
	return entries, nil
}

func extractContactInfo(doc *goquery.Document) (models.SectionValue, error) {
	container := doc.Find(fmt.Sprintf("section[data-section='%s']", models.SectionContactInfo))
	if container.Length() == 0 {
		return nil, fmt.Errorf("no contact info section found")
	}

	info := models.ContactInfo{
		Email: cleanText(container.Find(".contact-email").First().Text()),
		Phone: cleanText(container.Find(".contact-phone").First().Text()),
	}
	container.Find("li.contact-website a").Each(func(_ int, link *goquery.Selection) {
		if href, ok := link.Attr("href"); ok && href != "" {
			info.Websites = append(info.Websites, href)
		}
	})

	if info.Email == "" && info.Phone == "" && len(info.Websites) == 0 {
		return nil, fmt.Errorf("contact info section is empty")
	}
	return info, nil
}

// scalarListExtractor builds an extractor for sections whose entries are
// plain strings (skills, languages, courses and similar).
func scalarListExtractor(key models.SectionKey) ExtractorFunc {
	return func(doc *goquery.Document) (models.SectionValue, error) {
		values := make([]string, 0)
		sectionItems(doc, key).Each(func(_ int, item *goquery.Selection) {
			name := cleanText(item.Find(".entry-name").First().Text())
			if name == "" {
				name = cleanText(item.Text())
			}
			if name != "" {
				values = append(values, name)
			}
		})

		if len(values) == 0 {
			return nil, fmt.Errorf("no %s entries found", key)
		}
		return values, nil
	}
}

// sectionItems selects the list entries of a section's container.
func sectionItems(doc *goquery.Document, key models.SectionKey) *goquery.Selection {
	return doc.Find(fmt.Sprintf("section[data-section='%s'] li.entry", key))
}

// cleanText collapses the whitespace noise rendered pages carry.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
