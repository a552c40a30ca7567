package osm

import (
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/scoutreports/osmsync/internal/utils"
)

// Member is one person in a section. Identity fields are spelled
// inconsistently across endpoints, so parsing resolves each through an
// ordered list of candidate keys.
type Member struct {
	ID          string
	FirstName   string
	LastName    string
	Active      bool
	DateOfBirth string
	Patrol      string
	Role        string
	Badges      []BadgeLink
	CustomData  map[string]string
}

func (m *Member) String() string {
	label := m.Patrol
	if m.Role != "" {
		if label != "" {
			label += " "
		}
		label += m.Role
	}
	return fmt.Sprintf("%s, %s [%s]", m.LastName, m.FirstName, label)
}

// BadgeLink is a member's engagement with one badge, as reported by the
// badges-by-person query.
type BadgeLink struct {
	Name      string
	Completed bool
	Awarded   bool
	Picture   string
}

// firstPresent returns the first of the candidate keys present in the
// record. The bool reports whether any was found.
func firstPresent(rec gjson.Result, keys ...string) (gjson.Result, bool) {
	for _, key := range keys {
		if value := rec.Get(key); value.Exists() {
			return value, true
		}
	}
	return gjson.Result{}, false
}

func newMember(rec gjson.Result) (*Member, error) {
	id, ok := firstPresent(rec, "member_id", "scout_id", "scoutid")
	if !ok {
		return nil, &DataShapeError{Detail: "member record has no id under any known key"}
	}
	firstName, ok := firstPresent(rec, "first_name", "firstname")
	if !ok {
		return nil, &DataShapeError{Detail: "member record has no first name under any known key"}
	}
	lastName, ok := firstPresent(rec, "last_name", "lastname")
	if !ok {
		return nil, &DataShapeError{Detail: "member record has no last name under any known key"}
	}

	member := &Member{
		ID:        id.String(),
		FirstName: firstName.String(),
		LastName:  lastName.String(),
		Active:    rec.Get("active").Bool(),
		Patrol:    rec.Get("patrol").String(),
		Role:      rec.Get("patrol_role_level_label").String(),
	}
	if dob, ok := firstPresent(rec, "date_of_birth", "dob"); ok {
		member.DateOfBirth = dob.String()
	}

	for _, badge := range rec.Get("badges").Array() {
		member.Badges = append(member.Badges, BadgeLink{
			Name:      badge.Get("badge").String(),
			Completed: badge.Get("completed").String() == "1",
			Awarded:   badge.Get("awarded").String() == "1",
			Picture:   badge.Get("picture").String(),
		})
	}

	if custom := rec.Get("custom_data"); custom.Exists() && custom.IsObject() {
		member.CustomData = map[string]string{}
		custom.ForEach(func(key, value gjson.Result) bool {
			member.CustomData[key.String()] = value.String()
			return true
		})
	}

	return member, nil
}

// LoadMembers fetches the members grid for the term.
func (t *Term) LoadMembers(sess *Session) error {
	fields := url.Values{}
	fields.Set("section_id", t.Section.ID)
	fields.Set("term_id", t.ID)

	data, err := sess.Submit("/ext/members/contact/grid/?action=getMembers", fields)
	if err != nil {
		return fmt.Errorf("loading members: %w", err)
	}

	t.Members = nil
	var shapeErr error
	data.Get("data").ForEach(func(_, rec gjson.Result) bool {
		member, err := newMember(rec)
		if err != nil {
			shapeErr = err
			return false
		}
		t.Members = append(t.Members, member)
		return true
	})
	if shapeErr != nil {
		return shapeErr
	}

	t.MemberState = Loaded
	utils.Log.Info("Loaded ", len(t.Members), " members for term ", t.Name)
	return nil
}
