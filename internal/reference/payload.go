package reference

import (
	"encoding/json"
	"slices"
)

// RelationPredicate is the relation used for cross-reference links.
const RelationPredicate = "dc:relation"

// MaxTagLength bounds tags written to the library; longer ones are dropped.
const MaxTagLength = 40

// Tag is a library tag entry.
type Tag struct {
	Tag string `json:"tag"`
}

// ItemData is the persistence-ready projection of a Record, and the data
// section of a remote item. It has no auxiliary fields.
type ItemData struct {
	Key      string `json:"key,omitempty"`
	Version  int    `json:"version,omitempty"`
	ItemType string `json:"itemType"`

	Title        string `json:"title,omitempty"`
	AbstractNote string `json:"abstractNote,omitempty"`
	Date         string `json:"date,omitempty"`
	URL          string `json:"url,omitempty"`
	DOI          string `json:"DOI,omitempty"`

	Archive         string `json:"archive,omitempty"`
	ArchiveID       string `json:"archiveID,omitempty"`
	ArchiveLocation string `json:"archiveLocation,omitempty"`
	LibraryCatalog  string `json:"libraryCatalog,omitempty"`
	AccessDate      string `json:"accessDate,omitempty"`
	Extra           string `json:"extra,omitempty"`

	ProceedingsTitle string `json:"proceedingsTitle,omitempty"`
	ConferenceName   string `json:"conferenceName,omitempty"`
	Volume           string `json:"volume,omitempty"`
	Pages            string `json:"pages,omitempty"`

	Note       string `json:"note,omitempty"`
	ParentItem string `json:"parentItem,omitempty"`

	Creators    []Creator `json:"creators,omitempty"`
	Tags        []Tag     `json:"tags,omitempty"`
	Collections []string  `json:"collections,omitempty"`
	Relations   Relations `json:"relations,omitempty"`
}

// Relations maps a predicate to related item URIs. The library sends a
// bare string when a predicate has one value and an array otherwise.
type Relations map[string][]string

// UnmarshalJSON accepts both the string and the array form.
func (r *Relations) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Relations, len(raw))
	for pred, msg := range raw {
		var many []string
		if err := json.Unmarshal(msg, &many); err == nil {
			out[pred] = many
			continue
		}
		var one string
		if err := json.Unmarshal(msg, &one); err != nil {
			return err
		}
		out[pred] = []string{one}
	}
	*r = out
	return nil
}

// Payload projects the record into the data written to the library.
// Only fields valid for the record's item type are carried over.
func (r *Record) Payload() ItemData {
	d := ItemData{
		ItemType:        r.ItemType,
		Title:           r.Title,
		AbstractNote:    r.Abstract,
		Date:            r.Date,
		URL:             r.URL,
		DOI:             r.DOI,
		Archive:         r.Archive,
		ArchiveLocation: r.ArchiveLocation,
		LibraryCatalog:  r.LibraryCatalog,
		AccessDate:      r.AccessDate,
		Extra:           r.Extra,
		Creators:        slices.Clone(r.Creators),
		Tags:            payloadTags(r.Tags),
		Collections:     slices.Clone(r.Collections),
	}
	if d.ItemType == "" {
		d.ItemType = TypePreprint
	}

	switch d.ItemType {
	case TypePreprint:
		d.ArchiveID = r.ArchiveID
	case TypeConferencePaper:
		d.ProceedingsTitle = r.ProceedingsTitle
		d.ConferenceName = r.ConferenceName
		d.Volume = r.Volume
		d.Pages = r.Pages
	}
	return d
}

func payloadTags(tags []string) []Tag {
	seen := make(map[string]bool, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if t == "" || len(t) >= MaxTagLength || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, Tag{Tag: t})
	}
	return out
}

// NewNote builds a child note attached to parentKey.
func NewNote(parentKey, html string) ItemData {
	return ItemData{
		ItemType:   TypeNote,
		Note:       html,
		ParentItem: parentKey,
	}
}

// TagNames returns the tag strings of the item data.
func (d ItemData) TagNames() []string {
	names := make([]string, len(d.Tags))
	for i, t := range d.Tags {
		names[i] = t.Tag
	}
	return names
}
