package osm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scoutreports/osmsync/internal/utils"
)

// TimeFormat is the wire layout for meeting start/end times as the
// server sends them; minuteFormat is what it expects back.
const (
	TimeFormat   = "15:04:05"
	minuteFormat = "15:04"
)

// ErrNotPersisted is returned when deleting a meeting that has never
// been saved.
var ErrNotPersisted = errors.New("meeting has no remote id")

// Meeting is a single scheduled programme session within a term. A
// meeting without a RemoteID exists only locally; Save creates it.
//
// Every meeting carries a private snapshot of the field values last
// seen by the server, captured on construction from server data and
// after each successful save. Save sends only the fields that differ
// from that snapshot.
type Meeting struct {
	RemoteID    string
	Term        *Term
	Title       string
	Leaders     string
	PreNotes    string
	PostNotes   string
	ParentNotes string
	Date        time.Time
	StartTime   time.Time
	EndTime     time.Time

	// Attending members, populated only by a programme load with
	// attendance detail.
	Members []*Member

	synced meetingSnapshot
}

// meetingSnapshot is the wire-format view of a meeting's tracked
// fields, keyed by comparison rather than by reference so the diff is
// a plain struct comparison per field.
type meetingSnapshot struct {
	Title       string
	Leaders     string
	PreNotes    string
	PostNotes   string
	ParentNotes string
	Date        string
	StartTime   string
	EndTime     string
}

// NewMeeting constructs a transient meeting in the term. It does not
// exist on the server until Save is called.
func NewMeeting(term *Term) *Meeting {
	return &Meeting{Term: term}
}

func newMeetingFromServer(term *Term, rec gjson.Result) (*Meeting, error) {
	date, err := time.Parse(DateFormat, rec.Get("meetingdate").String())
	if err != nil {
		return nil, &DataShapeError{Detail: "bad meeting date: " + err.Error()}
	}
	start, err := time.Parse(TimeFormat, rec.Get("starttime").String())
	if err != nil {
		return nil, &DataShapeError{Detail: "bad meeting start time: " + err.Error()}
	}
	end, err := time.Parse(TimeFormat, rec.Get("endtime").String())
	if err != nil {
		return nil, &DataShapeError{Detail: "bad meeting end time: " + err.Error()}
	}

	meeting := &Meeting{
		RemoteID:    rec.Get("eveningid").String(),
		Term:        term,
		Title:       rec.Get("title").String(),
		Leaders:     rec.Get("leaders").String(),
		PreNotes:    rec.Get("prenotes").String(),
		PostNotes:   rec.Get("postnotes").String(),
		ParentNotes: rec.Get("notesforparents").String(),
		Date:        date,
		StartTime:   start,
		EndTime:     end,
	}
	meeting.synced = meeting.capture()
	return meeting, nil
}

func (m *Meeting) String() string {
	return fmt.Sprintf("%s: %s", m.Date.Format(DateFormat), m.Title)
}

// Persisted reports whether the meeting exists on the server.
func (m *Meeting) Persisted() bool {
	return m.RemoteID != ""
}

func (m *Meeting) capture() meetingSnapshot {
	snapshot := meetingSnapshot{
		Title:       m.Title,
		Leaders:     m.Leaders,
		PreNotes:    m.PreNotes,
		PostNotes:   m.PostNotes,
		ParentNotes: m.ParentNotes,
	}
	if !m.Date.IsZero() {
		snapshot.Date = m.Date.Format(DateFormat)
	}
	if !m.StartTime.IsZero() {
		snapshot.StartTime = m.StartTime.Format(minuteFormat)
	}
	if !m.EndTime.IsZero() {
		snapshot.EndTime = m.EndTime.Format(minuteFormat)
	}
	return snapshot
}

// diff returns the partial-update payload: the wire field name of every
// tracked field whose current value differs from the prior snapshot.
func diff(prior, current meetingSnapshot) map[string]string {
	changes := map[string]string{}
	if current.Title != prior.Title {
		changes["title"] = current.Title
	}
	if current.PreNotes != prior.PreNotes {
		changes["prenotes"] = current.PreNotes
	}
	if current.PostNotes != prior.PostNotes {
		changes["postnotes"] = current.PostNotes
	}
	if current.Leaders != prior.Leaders {
		changes["leaders"] = current.Leaders
	}
	if current.ParentNotes != prior.ParentNotes {
		changes["notesforparents"] = current.ParentNotes
	}
	if current.Date != prior.Date {
		changes["meetingdate"] = current.Date
	}
	if current.StartTime != prior.StartTime {
		changes["starttime"] = current.StartTime
	}
	if current.EndTime != prior.EndTime {
		changes["endtime"] = current.EndTime
	}
	return changes
}

// Save upserts the meeting. A transient meeting is created first and
// then brought up to date with the same partial-update step, diffed
// against an empty snapshot. A persisted meeting sends only the fields
// changed since the last sync; when nothing changed, no request is
// made. The change-set that was sent is returned.
func (m *Meeting) Save(sess *Session) (map[string]string, error) {
	if !m.Persisted() {
		if err := m.create(sess); err != nil {
			return nil, err
		}
		m.synced = meetingSnapshot{}
	}

	changes := diff(m.synced, m.capture())
	if len(changes) == 0 {
		utils.Log.Debug("Meeting ", m.RemoteID, " is unchanged, skipping update")
		return changes, nil
	}

	encoded, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}

	fields := url.Values{}
	fields.Set("sectionid", m.Term.Section.ID)
	fields.Set("termid", m.Term.ID)
	fields.Set("eveningid", m.RemoteID)
	fields.Set("parts", string(encoded))
	if _, err := sess.Submit("/ext/programme/?action=editEveningParts", fields); err != nil {
		return nil, fmt.Errorf("updating meeting %s: %w", m.RemoteID, err)
	}

	m.synced = m.capture()
	return changes, nil
}

func (m *Meeting) create(sess *Session) error {
	fields := url.Values{}
	fields.Set("sectionid", m.Term.Section.ID)
	fields.Set("start", m.Date.Format(DateFormat))
	fields.Set("title", m.Title)
	fields.Set("prenotes", m.PreNotes)
	fields.Set("postnotes", m.PostNotes)
	fields.Set("leaders", m.Leaders)
	fields.Set("notesforparents", m.ParentNotes)
	fields.Set("meetingdate", m.Date.Format(DateFormat))
	fields.Set("starttime", m.StartTime.Format(minuteFormat))
	fields.Set("endtime", m.EndTime.Format(minuteFormat))

	data, err := sess.Submit("/ext/programme/?action=addMeeting", fields)
	if err != nil {
		return fmt.Errorf("adding meeting: %w", err)
	}

	remoteID := data.Get("lastmeetingadded")
	if !remoteID.Exists() {
		return &DataShapeError{Detail: "addMeeting response has no lastmeetingadded"}
	}
	m.RemoteID = remoteID.String()
	utils.Log.Info("Created meeting ", m.RemoteID, " on ", m.Date.Format(DateFormat))
	return nil
}

// Delete removes the meeting from the server and makes it transient
// again.
func (m *Meeting) Delete(sess *Session) error {
	if !m.Persisted() {
		return ErrNotPersisted
	}
	path := fmt.Sprintf("/ext/programme/?action=deleteMeeting&eveningid=%s&sectionid=%s",
		m.RemoteID, m.Term.Section.ID)
	if _, err := sess.Fetch(path); err != nil {
		return fmt.Errorf("deleting meeting %s: %w", m.RemoteID, err)
	}
	utils.Log.Info("Deleted meeting ", m.RemoteID)
	m.RemoteID = ""
	return nil
}

// LoadProgramme fetches the ordered meetings for the term. With
// includeAttendance the attendance grid is fetched as well and each
// attending member is attached to the meeting on their date.
func (t *Term) LoadProgramme(sess *Session, includeAttendance bool) error {
	path := fmt.Sprintf("/ext/programme/?action=getProgrammeSummary&sectionid=%s&termid=%s",
		t.Section.ID, t.ID)
	data, err := sess.Fetch(path)
	if err != nil {
		return fmt.Errorf("loading programme: %w", err)
	}

	t.Programme = nil
	for _, rec := range data.Get("items").Array() {
		meeting, err := newMeetingFromServer(t, rec)
		if err != nil {
			return err
		}
		t.Programme = append(t.Programme, meeting)
	}
	t.ProgrammeState = Loaded
	utils.Log.Info("Loaded ", len(t.Programme), " meetings for term ", t.Name)

	if !includeAttendance {
		return nil
	}
	if err := t.loadAttendance(sess); err != nil {
		return err
	}
	t.ProgrammeState = LoadedWithDetail
	return nil
}

func (t *Term) loadAttendance(sess *Session) error {
	byDate := map[string]*Meeting{}
	for _, meeting := range t.Programme {
		byDate[meeting.Date.Format(DateFormat)] = meeting
	}

	path := fmt.Sprintf("/ext/members/attendance/?action=get&sectionid=%s&termid=%s",
		t.Section.ID, t.ID)
	data, err := sess.Fetch(path)
	if err != nil {
		return fmt.Errorf("loading attendance: %w", err)
	}

	for _, rec := range data.Get("items").Array() {
		member, err := newMember(rec)
		if err != nil {
			return err
		}
		for date, meeting := range byDate {
			if rec.Get(date).String() == "Yes" {
				meeting.Members = append(meeting.Members, member)
			}
		}
	}
	return nil
}

// MeetingProposal is one row of an externally prepared programme,
// keyed by calendar date.
type MeetingProposal struct {
	Date        time.Time
	Title       string
	Leaders     string
	PreNotes    string
	ParentNotes string
	StartTime   time.Time
	EndTime     time.Time
}

// ImportResult describes what one proposal did to the programme.
type ImportResult struct {
	Date    time.Time
	Created bool
	Changes map[string]string
}

// ImportProgramme applies a proposed programme to the term. Proposals
// are matched to existing meetings by exact calendar date; unmatched
// dates become new meetings. Each meeting is saved in input order, one
// request at a time, with no atomicity across the batch.
func (t *Term) ImportProgramme(sess *Session, proposals []MeetingProposal) ([]ImportResult, error) {
	meetings := map[string]*Meeting{}
	for _, meeting := range t.Programme {
		meetings[meeting.Date.Format(DateFormat)] = meeting
	}

	var results []ImportResult
	for _, proposal := range proposals {
		key := proposal.Date.Format(DateFormat)
		meeting, ok := meetings[key]
		created := false
		if !ok {
			meeting = NewMeeting(t)
			meeting.Date = proposal.Date
			meetings[key] = meeting
			t.Programme = append(t.Programme, meeting)
			created = true
		}

		meeting.Title = proposal.Title
		meeting.ParentNotes = proposal.ParentNotes
		meeting.PreNotes = proposal.PreNotes
		meeting.Leaders = proposal.Leaders
		if !proposal.StartTime.IsZero() {
			meeting.StartTime = proposal.StartTime
		}
		if !proposal.EndTime.IsZero() {
			meeting.EndTime = proposal.EndTime
		}

		changes, err := meeting.Save(sess)
		if err != nil {
			return results, fmt.Errorf("importing meeting on %s: %w", key, err)
		}
		results = append(results, ImportResult{Date: proposal.Date, Created: created, Changes: changes})
	}
	return results, nil
}
