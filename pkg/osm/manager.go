package osm

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scoutreports/osmsync/internal/utils"
)

// DateFormat is the calendar-date layout used by every endpoint.
const DateFormat = "2006-01-02"

// LoadState tracks whether a lazily-fetched collection has been
// populated. Programme loads can additionally carry attendance detail.
type LoadState int

const (
	NotLoaded LoadState = iota
	Loaded
	LoadedWithDetail
)

// IsLoaded reports whether a load has happened at all.
func (s LoadState) IsLoaded() bool {
	return s != NotLoaded
}

func (s LoadState) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case LoadedWithDetail:
		return "loaded with detail"
	default:
		return "not loaded"
	}
}

// Manager holds the section/term hierarchy for one user.
type Manager struct {
	Sections []*Section
}

// Section is an organizational unit with its own terms and badges.
type Section struct {
	ID    string
	Name  string
	Type  string
	Group string
	Terms []*Term
}

func (s *Section) String() string {
	return fmt.Sprintf("%s: %s [%s]", s.Group, s.Name, s.Type)
}

// Term is a bounded time period within a section. Its collections are
// loaded lazily; check the load state before calling the loaders to
// avoid redundant round-trips, the loaders themselves always re-fetch.
type Term struct {
	ID        string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Section   *Section

	Badges      []*Badge
	BadgeState  LoadState
	Members     []*Member
	MemberState LoadState

	Programme      []*Meeting
	ProgrammeState LoadState
}

func (t *Term) String() string {
	return fmt.Sprintf("%s (%s to %s)",
		t.Name, t.StartDate.Format(DateFormat), t.EndDate.Format(DateFormat))
}

// Load fetches the accessible sections and all their terms. It is meant
// to run once per session; calling it again appends duplicates.
func (m *Manager) Load(sess *Session) error {
	data, err := sess.Fetch("/api.php?action=getUserRoles")
	if err != nil {
		return fmt.Errorf("loading sections: %w", err)
	}

	sections := map[string]*Section{}
	for _, rec := range data.Array() {
		section := &Section{
			ID:    rec.Get("sectionid").String(),
			Name:  rec.Get("sectionname").String(),
			Type:  rec.Get("section").String(),
			Group: rec.Get("groupname").String(),
		}
		sections[section.ID] = section
		m.Sections = append(m.Sections, section)
	}
	utils.Log.Info("Loaded ", len(m.Sections), " sections")

	data, err = sess.Fetch("/api.php?action=getTerms")
	if err != nil {
		return fmt.Errorf("loading terms: %w", err)
	}

	var shapeErr error
	data.ForEach(func(key, value gjson.Result) bool {
		section, ok := sections[key.String()]
		if !ok {
			shapeErr = &DataShapeError{Detail: "terms returned for unknown section " + key.String()}
			return false
		}
		for _, rec := range value.Array() {
			term, err := newTerm(rec, section)
			if err != nil {
				shapeErr = err
				return false
			}
			section.Terms = append(section.Terms, term)
		}
		return true
	})
	return shapeErr
}

func newTerm(rec gjson.Result, section *Section) (*Term, error) {
	start, err := time.Parse(DateFormat, rec.Get("startdate").String())
	if err != nil {
		return nil, &DataShapeError{Detail: "bad term start date: " + err.Error()}
	}
	end, err := time.Parse(DateFormat, rec.Get("enddate").String())
	if err != nil {
		return nil, &DataShapeError{Detail: "bad term end date: " + err.Error()}
	}
	return &Term{
		ID:        rec.Get("termid").String(),
		Name:      rec.Get("name").String(),
		StartDate: start,
		EndDate:   end,
		Section:   section,
	}, nil
}

// FindSection returns the first section with the given display name, in
// load order, or nil.
func (m *Manager) FindSection(name string) *Section {
	for _, section := range m.Sections {
		if section.Name == name {
			return section
		}
	}
	return nil
}

// FindSectionByType returns the first section of the given type, in
// load order, or nil.
func (m *Manager) FindSectionByType(sectionType string) *Section {
	for _, section := range m.Sections {
		if section.Type == sectionType {
			return section
		}
	}
	return nil
}

// CurrentTerm returns the first term whose inclusive date range
// contains today, or nil when no term is running.
func (s *Section) CurrentTerm() *Term {
	return s.CurrentTermAt(time.Now())
}

// CurrentTermAt is CurrentTerm evaluated at an arbitrary time.
func (s *Section) CurrentTermAt(now time.Time) *Term {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, term := range s.Terms {
		if !day.Before(term.StartDate) && !day.After(term.EndDate) {
			return term
		}
	}
	return nil
}
