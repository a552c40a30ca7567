package osm

import (
	"os"

	"github.com/tidwall/gjson"
)

// AwardScheme is an externally configured list of named badges used to
// drive aggregation and reporting. The core never mutates it.
type AwardScheme struct {
	Badges []AwardSchemeBadge
}

// AwardSchemeBadge is one named badge of the scheme. CompleteID, when
// set, names the underlying badge whose completion flag marks the whole
// award as achieved. Group indicates the scheme badge carries grouped
// requirement columns.
type AwardSchemeBadge struct {
	Name       string
	Group      bool
	CompleteID string
	Parts      []AwardSchemePart
}

// AwardSchemePart references one underlying badge by identifier.
type AwardSchemePart struct {
	Name  string
	ID    string
	Group bool
}

// LoadAwardScheme reads an award-scheme definition file.
func LoadAwardScheme(path string) (*AwardScheme, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{File: path, Detail: err.Error()}
	}
	if !gjson.ValidBytes(raw) {
		return nil, &ConfigurationError{File: path, Detail: "file is not valid JSON"}
	}

	data := gjson.ParseBytes(raw)
	badges := data.Get("badges")
	if !badges.Exists() {
		return nil, &ConfigurationError{File: path, Detail: "missing badges list"}
	}

	scheme := &AwardScheme{}
	for _, badge := range badges.Array() {
		schemeBadge := AwardSchemeBadge{
			Name:       badge.Get("name").String(),
			Group:      badge.Get("group").Bool(),
			CompleteID: badge.Get("complete_id").String(),
		}
		for _, part := range badge.Get("parts").Array() {
			schemeBadge.Parts = append(schemeBadge.Parts, AwardSchemePart{
				Name:  part.Get("name").String(),
				ID:    part.Get("id").String(),
				Group: part.Get("group").Bool(),
			})
		}
		scheme.Badges = append(scheme.Badges, schemeBadge)
	}
	return scheme, nil
}
