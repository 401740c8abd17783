// Package projection folds an entity's ordered transaction log into its
// current observable state. The fold is pure: no clock, no randomness, no
// I/O, so projecting the same log twice yields identical state.
package projection

import (
	"encoding/json"
	"sort"
	"time"

	"seedbed/internal/models"
)

// SeedState is the projected view of a seed. Tags and Categories are kept
// sorted so repeated projections compare equal structurally. UserID is not
// part of the log; it comes from the seed's identity row and is attached
// by the services that load both.
type SeedState struct {
	SeedID      string            `json:"seed_id"`
	UserID      string            `json:"user_id"`
	Content     string            `json:"content"`
	Tags        []string          `json:"tags"`
	Categories  []string          `json:"categories"`
	Metadata    map[string]string `json:"metadata"`
	HasCreation bool              `json:"has_creation"`
}

// TagState is the projected view of a tag.
type TagState struct {
	TagID       string `json:"tag_id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	HasCreation bool   `json:"has_creation"`
}

// Sprout statuses.
const (
	SproutStatusOpen      = "open"
	SproutStatusDone      = "done"
	SproutStatusDismissed = "dismissed"
)

// SproutState is the projected view of a sprout.
type SproutState struct {
	SproutID    string     `json:"sprout_id"`
	SproutType  string     `json:"sprout_type"`
	Message     string     `json:"message"`
	DueTime     *time.Time `json:"due_time"`
	Status      string     `json:"status"`
	HasCreation bool       `json:"has_creation"`
}

// HasCategory reports whether the seed currently carries the category.
func (s *SeedState) HasCategory(categoryID string) bool {
	for _, c := range s.Categories {
		if c == categoryID {
			return true
		}
	}
	return false
}

type createSeedData struct {
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	Categories []string `json:"categories"`
}

type editContentData struct {
	Content string `json:"content"`
}

type tagRefData struct {
	TagID string `json:"tag_id"`
}

type categoryRefData struct {
	CategoryID string `json:"category_id"`
}

type metadataData struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type creationData struct {
	// Tag creation fields.
	Name  string `json:"name"`
	Color string `json:"color"`
	// Sprout creation fields.
	SproutType string `json:"sprout_type"`
	Message    string `json:"message"`
	DueTime    string `json:"due_time"`
}

type statusData struct {
	Status string `json:"status"`
}

type followupData struct {
	Message string `json:"message"`
	DueTime string `json:"due_time"`
}

// ProjectSeed folds the transactions into a SeedState. The input must
// already be ordered ascending by (created_at, seq); the fold does not
// re-sort. Unknown types and malformed payloads for known types are
// no-ops: append-time validation is the gate, projection never fails.
func ProjectSeed(seedID string, txs []models.Transaction) *SeedState {
	state := &SeedState{
		SeedID:   seedID,
		Metadata: map[string]string{},
	}
	tags := map[string]struct{}{}
	cats := map[string]struct{}{}

	for _, tx := range txs {
		switch tx.Type {
		case models.TxCreateSeed:
			var d createSeedData
			if !decode(tx.Data, &d) {
				continue
			}
			state.Content = d.Content
			for _, t := range d.Tags {
				tags[t] = struct{}{}
			}
			for _, c := range d.Categories {
				cats[c] = struct{}{}
			}
			state.HasCreation = true
		case models.TxEditContent:
			var d editContentData
			if decode(tx.Data, &d) {
				state.Content = d.Content
			}
		case models.TxAddTag:
			var d tagRefData
			if decode(tx.Data, &d) && d.TagID != "" {
				tags[d.TagID] = struct{}{}
			}
		case models.TxRemoveTag:
			var d tagRefData
			if decode(tx.Data, &d) {
				delete(tags, d.TagID)
			}
		case models.TxSetCategory:
			var d categoryRefData
			if decode(tx.Data, &d) && d.CategoryID != "" {
				cats[d.CategoryID] = struct{}{}
			}
		case models.TxRemoveCategory:
			var d categoryRefData
			if decode(tx.Data, &d) {
				delete(cats, d.CategoryID)
			}
		case models.TxSetMetadata:
			var d metadataData
			if decode(tx.Data, &d) && d.Key != "" {
				state.Metadata[d.Key] = d.Value
			}
		case models.TxRemoveMetadata:
			var d metadataData
			if decode(tx.Data, &d) {
				delete(state.Metadata, d.Key)
			}
		}
	}

	state.Tags = sortedKeys(tags)
	state.Categories = sortedKeys(cats)
	return state
}

// ProjectTag folds a tag's log.
func ProjectTag(tagID string, txs []models.Transaction) *TagState {
	state := &TagState{TagID: tagID}
	for _, tx := range txs {
		switch tx.Type {
		case models.TxCreation:
			var d creationData
			if !decode(tx.Data, &d) {
				continue
			}
			state.Name = d.Name
			state.Color = d.Color
			state.HasCreation = true
		case models.TxRenameTag:
			var d creationData
			if decode(tx.Data, &d) && d.Name != "" {
				state.Name = d.Name
			}
		}
	}
	return state
}

// ProjectSprout folds a sprout's log. Legacy add_followup records are
// folded too so pre-consolidation logs still project.
func ProjectSprout(sproutID string, txs []models.Transaction) *SproutState {
	state := &SproutState{SproutID: sproutID, Status: SproutStatusOpen}
	for _, tx := range txs {
		switch tx.Type {
		case models.TxCreation:
			var d creationData
			if !decode(tx.Data, &d) {
				continue
			}
			state.SproutType = d.SproutType
			state.Message = d.Message
			state.DueTime = parseTime(d.DueTime)
			state.HasCreation = true
		case models.TxAddFollowup:
			var d followupData
			if !decode(tx.Data, &d) {
				continue
			}
			state.SproutType = string(models.SproutFollowUp)
			state.Message = d.Message
			state.DueTime = parseTime(d.DueTime)
			state.HasCreation = true
		case models.TxEditContent:
			var d editContentData
			if decode(tx.Data, &d) {
				state.Message = d.Content
			}
		case models.TxSetStatus:
			var d statusData
			if decode(tx.Data, &d) && d.Status != "" {
				state.Status = d.Status
			}
		}
	}
	return state
}

// decode unmarshals a payload, tolerating the legacy double-encoded form
// where the JSON object was stored as a JSON string. Returns false on any
// parse failure so the caller can skip the record.
func decode(data string, v interface{}) bool {
	if data == "" {
		return false
	}
	if err := json.Unmarshal([]byte(data), v); err == nil {
		return true
	}
	var inner string
	if err := json.Unmarshal([]byte(data), &inner); err != nil {
		return false
	}
	return json.Unmarshal([]byte(inner), v) == nil
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
