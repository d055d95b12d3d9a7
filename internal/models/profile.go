package models

import (
	"encoding/json"
	"time"
)

// SectionKey identifies one collectible section of a profile. The key selects
// which extractor runs and where the result is merged in the aggregate.
type SectionKey string

const (
	SectionExperience    SectionKey = "experience"
	SectionEducation     SectionKey = "education"
	SectionLanguages     SectionKey = "languages"
	SectionVolunteering  SectionKey = "volunteering"
	SectionSkills        SectionKey = "skills"
	SectionProjects      SectionKey = "projects"
	SectionCourses       SectionKey = "courses"
	SectionPublications  SectionKey = "publications"
	SectionPatents       SectionKey = "patents"
	SectionOrganizations SectionKey = "organizations"

	// SectionContactInfo is never queued from the main scrape. It is fetched
	// via a dedicated overlay URL derived from the target identifier.
	SectionContactInfo SectionKey = "contactInfo"
)

// QueueableSectionKeys returns the section keys that may appear in a main
// scrape's discovered queue, in their canonical processing order.
func QueueableSectionKeys() []SectionKey {
	return []SectionKey{
		SectionExperience,
		SectionEducation,
		SectionLanguages,
		SectionVolunteering,
		SectionSkills,
		SectionProjects,
		SectionCourses,
		SectionPublications,
		SectionPatents,
		SectionOrganizations,
	}
}

// IsValid reports whether the key is one of the known section keys.
func (k SectionKey) IsValid() bool {
	if k == SectionContactInfo {
		return true
	}
	for _, known := range QueueableSectionKeys() {
		if k == known {
			return true
		}
	}
	return false
}

// SectionValue is the extracted value for one section. It is opaque to the
// controller: a structured record, a list of records, or a scalar list,
// whatever the extractor for that key returns.
type SectionValue interface{}

// SectionTask describes one unit of deferred work: a section whose full data
// lives on a dedicated page that must be navigated to before extraction.
// Tasks are created by the main scrape and consumed exactly once, FIFO.
type SectionTask struct {
	Key SectionKey `json:"key"`
	URL string     `json:"url"`
}

// Profile holds the document-level fields read directly from the main page.
type Profile struct {
	Name     string `json:"name,omitempty"`
	Headline string `json:"headline,omitempty"`
	Location string `json:"location,omitempty"`
	About    string `json:"about,omitempty"`
	URL      string `json:"url,omitempty"`
}

// IsEmpty reports whether the main scrape produced no usable profile.
// A profile without a name is treated as a failed main scrape.
func (p Profile) IsEmpty() bool {
	return p.Name == ""
}

// Experience is one entry of the experience (or volunteering) section.
type Experience struct {
	Title     string `json:"title"`
	Company   string `json:"company"`
	DateRange string `json:"date_range,omitempty"`
	Location  string `json:"location,omitempty"`
}

// Education is one entry of the education section.
type Education struct {
	School string `json:"school"`
	Degree string `json:"degree,omitempty"`
}

// ContactInfo holds the contact overlay's fields.
type ContactInfo struct {
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Websites []string `json:"websites,omitempty"`
}

// Aggregate accumulates the session's result: the main profile fields plus at
// most one value per section key. Mutated only by the session controller.
type Aggregate struct {
	Profile  Profile
	Sections map[SectionKey]SectionValue
}

// NewAggregate creates an empty aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{
		Sections: make(map[SectionKey]SectionValue),
	}
}

// Merge stores value under key. Returns false without overwriting when the
// key already has an entry, preserving the at-most-one-entry-per-key rule.
func (a *Aggregate) Merge(key SectionKey, value SectionValue) bool {
	if value == nil {
		return false
	}
	if _, exists := a.Sections[key]; exists {
		return false
	}
	a.Sections[key] = value
	return true
}

// Has reports whether the aggregate already holds a value for key.
func (a *Aggregate) Has(key SectionKey) bool {
	_, exists := a.Sections[key]
	return exists
}

// Flatten returns the completion payload shape: profile fields and section
// values merged into a single flat object keyed by field name / section key.
func (a *Aggregate) Flatten() map[string]interface{} {
	out := make(map[string]interface{})
	if a.Profile.Name != "" {
		out["name"] = a.Profile.Name
	}
	if a.Profile.Headline != "" {
		out["headline"] = a.Profile.Headline
	}
	if a.Profile.Location != "" {
		out["location"] = a.Profile.Location
	}
	if a.Profile.About != "" {
		out["about"] = a.Profile.About
	}
	if a.Profile.URL != "" {
		out["url"] = a.Profile.URL
	}
	for key, value := range a.Sections {
		out[string(key)] = value
	}
	return out
}

// MarshalJSON emits the flattened completion payload.
func (a *Aggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Flatten())
}

// ProfileRecord is a completed collection result as persisted in the history
// store. Data is the flattened aggregate exactly as carried by the
// completion event.
type ProfileRecord struct {
	ID          string                 `json:"id" badgerhold:"key"`
	TargetID    string                 `json:"target_id" badgerholdIndex:"TargetID"`
	Name        string                 `json:"name"`
	Data        map[string]interface{} `json:"data"`
	CollectedAt time.Time              `json:"collected_at"`
}
