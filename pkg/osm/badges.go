package osm

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/scoutreports/osmsync/internal/utils"
)

// Badge is an achievement definition with one or more trackable parts.
// The internal id/version pair is only used to address later requests
// and is deliberately not exposed.
type Badge struct {
	// Number is the display position, assigned continuously across the
	// two structural fetches so the ordering is stable.
	Number  int
	ID      string
	Name    string
	Type    string
	Picture string
	Term    *Term
	Parts   []BadgePart

	Progress      []*BadgeProgress
	ProgressState LoadState

	internalID string
	version    string
}

func (b *Badge) String() string {
	badgeType := b.Type
	if badgeType == "" {
		badgeType = "Unknown"
	}
	return fmt.Sprintf("%d: %s [%s]", b.Number, b.Name, badgeType)
}

// BadgePart is one trackable requirement of a badge. Consecutive parts
// sharing a display name form one logical grouped requirement.
type BadgePart struct {
	ID          string
	Name        string
	Description string
}

// BadgeProgress is one member's raw completion markers against a
// badge's parts. A marker's presence means a contribution toward that
// part; absence means not yet attempted.
type BadgeProgress struct {
	FirstName string
	LastName  string
	Completed bool
	Parts     map[string]string
}

func (p *BadgeProgress) String() string {
	if p.Completed {
		return fmt.Sprintf("%s, %s [Complete]", p.LastName, p.FirstName)
	}
	return fmt.Sprintf("%s, %s", p.LastName, p.FirstName)
}

// LoadBadges fetches the badges for the term. The server splits badges
// over two structural types; both are fetched and numbered as one run.
func (t *Term) LoadBadges(sess *Session) error {
	t.Badges = nil
	for _, badgeType := range []int{1, 2} {
		if err := t.loadBadgeType(sess, badgeType); err != nil {
			return err
		}
	}
	t.BadgeState = Loaded
	utils.Log.Info("Loaded ", len(t.Badges), " badges for term ", t.Name)
	return nil
}

func (t *Term) loadBadgeType(sess *Session, badgeType int) error {
	path := fmt.Sprintf(
		"/ext/badges/records/?action=getBadgeStructureByType&a=1&section=%s&type_id=%d&term_id=%s&section_id=%s",
		t.Section.Type, badgeType, t.ID, t.Section.ID)
	data, err := sess.Fetch(path)
	if err != nil {
		return fmt.Errorf("loading badges of type %d: %w", badgeType, err)
	}

	structure := data.Get("structure")
	number := len(t.Badges) + 1
	data.Get("details").ForEach(func(_, details gjson.Result) bool {
		badge := newBadge(number, details, structure, t)
		t.Badges = append(t.Badges, badge)
		number++
		return true
	})
	return nil
}

func newBadge(number int, details, structure gjson.Result, term *Term) *Badge {
	badge := &Badge{
		Number:     number,
		ID:         details.Get("badge_identifier").String(),
		Name:       details.Get("name").String(),
		Type:       details.Get("group_name").String(),
		Picture:    details.Get("picture").String(),
		Term:       term,
		internalID: details.Get("badge_id").String(),
		version:    details.Get("badge_version").String(),
	}

	// The parts live in the second element of the structure entry. A
	// badge without a structure entry simply has no trackable parts.
	rows := structure.Get(badge.ID).Get("1.rows")
	if !rows.Exists() {
		utils.Log.Debug("No part structure for badge ", badge.Name)
		return badge
	}
	for _, row := range rows.Array() {
		badge.Parts = append(badge.Parts, BadgePart{
			ID:          row.Get("field").String(),
			Name:        row.Get("name").String(),
			Description: row.Get("tooltip").String(),
		})
	}
	return badge
}

// FindBadge returns the first badge with the given name, or nil.
func (t *Term) FindBadge(name string) *Badge {
	for _, badge := range t.Badges {
		if badge.Name == name {
			return badge
		}
	}
	return nil
}

// LoadProgress fetches one progress record per member for this badge.
func (b *Badge) LoadProgress(sess *Session) error {
	path := fmt.Sprintf(
		"/ext/badges/records/?action=getBadgeRecords&term_id=%s&section=%s&badge_id=%s&section_id=%s&badge_version=%s",
		b.Term.ID, b.Term.Section.Type, b.internalID, b.Term.Section.ID, b.version)
	data, err := sess.Fetch(path)
	if err != nil {
		return fmt.Errorf("loading progress for badge %s: %w", b.Name, err)
	}

	b.Progress = nil
	for _, person := range data.Get("items").Array() {
		progress := &BadgeProgress{
			FirstName: person.Get("firstname").String(),
			LastName:  person.Get("lastname").String(),
			Completed: person.Get("completed").String() == "1",
			Parts:     map[string]string{},
		}
		for _, part := range b.Parts {
			if marker := person.Get(part.ID); marker.Exists() {
				progress.Parts[part.ID] = marker.String()
			}
		}
		b.Progress = append(b.Progress, progress)
	}
	b.ProgressState = Loaded
	return nil
}

// DownloadPicture fetches the badge's picture into filename.
func (b *Badge) DownloadPicture(sess *Session, filename string) error {
	if b.Picture == "" {
		return &DataShapeError{Detail: "badge " + b.Name + " has no picture reference"}
	}
	return sess.FetchBinary(b.Picture, filename)
}

// LoadBadgesByPerson runs the per-member badge engagement report. The
// result is not cached on the term.
func (t *Term) LoadBadgesByPerson(sess *Session) ([]*Member, error) {
	path := fmt.Sprintf(
		"/ext/badges/badgesbyperson/?action=loadBadgesByMember&sectionid=%s&term_id=%s",
		t.Section.ID, t.ID)
	data, err := sess.Fetch(path)
	if err != nil {
		return nil, fmt.Errorf("loading badges by person: %w", err)
	}

	var report []*Member
	for _, rec := range data.Get("data").Array() {
		member, err := newMember(rec)
		if err != nil {
			return nil, err
		}
		report = append(report, member)
	}
	return report, nil
}
