// Package forms turns structured form submissions into update fields.
//
// A submission maps a logical field name ("summary", "progress", ...) to one
// or more widget results keyed by action id. Each widget is reduced to a
// single scalar through a small set of value variants; malformed input
// degrades to absent fields and never to an error.
package forms

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yukikurage/checkin-bot/internal/models"
)

// Logical field names recognised in a submission.
const (
	FieldSummary  = "summary"
	FieldProgress = "progress"
	FieldBlockers = "blockers"
	FieldETA      = "eta"
	FieldRAG      = "rag"
)

// ETALayout is the calendar date layout accepted for the eta field.
const ETALayout = "2006-01-02"

// Value is a widget result reduced to one optional scalar.
type Value interface {
	Scalar() (string, bool)
}

// TextValue is the result of a free-text or date widget.
type TextValue struct {
	Text *string
}

// Scalar returns the trimmed text, absent when empty.
func (v TextValue) Scalar() (string, bool) {
	return nonEmpty(v.Text)
}

// ChoiceValue is the result of a single-select widget.
type ChoiceValue struct {
	Selected *string
}

// Scalar returns the selected option's value, absent when nothing is selected.
func (v ChoiceValue) Scalar() (string, bool) {
	return nonEmpty(v.Selected)
}

// Option is a selected option of a choice widget.
type Option struct {
	Value string `json:"value"`
}

// Widget is one widget result as delivered by the chat platform.
type Widget struct {
	Type           string  `json:"type"`
	Value          *string `json:"value,omitempty"`
	SelectedOption *Option `json:"selected_option,omitempty"`
	SelectedDate   *string `json:"selected_date,omitempty"`
}

// Variant classifies the widget into its value variant.
func (w Widget) Variant() Value {
	switch {
	case w.SelectedOption != nil:
		return ChoiceValue{Selected: &w.SelectedOption.Value}
	case strings.HasSuffix(w.Type, "_select") || w.Type == "radio_buttons":
		return ChoiceValue{}
	case w.SelectedDate != nil:
		return TextValue{Text: w.SelectedDate}
	default:
		return TextValue{Text: w.Value}
	}
}

// BlockMap is the canonical submission shape: field name -> action id -> widget.
type BlockMap map[string]map[string]Widget

// Fields is the flat result of extraction. Nil means absent.
type Fields struct {
	Summary     *string
	ProgressPct *int
	Blockers    *string
	ETA         *time.Time
	RAG         *models.RAG
}

// Extract reduces a submission to update fields.
func Extract(blocks BlockMap) Fields {
	scalars := Scalars(blocks)

	var fields Fields
	if s, ok := scalars[FieldSummary]; ok {
		fields.Summary = &s
	}
	if s, ok := scalars[FieldBlockers]; ok {
		fields.Blockers = &s
	}
	if s, ok := scalars[FieldProgress]; ok {
		fields.ProgressPct = ParseProgress(s)
	}
	if s, ok := scalars[FieldETA]; ok {
		fields.ETA = ParseETA(s)
	}
	if s, ok := scalars[FieldRAG]; ok {
		if rag, valid := models.ParseRAG(s); valid {
			fields.RAG = &rag
		}
	}
	return fields
}

// Scalars maps each known logical field to its first non-absent widget scalar.
// Blocks and nested widgets are visited in sorted id order.
func Scalars(blocks BlockMap) map[string]string {
	blockIDs := make([]string, 0, len(blocks))
	for id := range blocks {
		blockIDs = append(blockIDs, id)
	}
	sort.Strings(blockIDs)

	out := make(map[string]string, len(blocks))
	for _, blockID := range blockIDs {
		widgets := blocks[blockID]
		name := fieldName(blockID)
		if name == "" {
			continue
		}
		if _, seen := out[name]; seen {
			continue
		}

		actionIDs := make([]string, 0, len(widgets))
		for id := range widgets {
			actionIDs = append(actionIDs, id)
		}
		sort.Strings(actionIDs)

		for _, id := range actionIDs {
			if s, ok := widgets[id].Variant().Scalar(); ok {
				out[name] = s
				break
			}
		}
	}
	return out
}

// ParseProgress accepts only all-digit strings in the 0-100 range.
func ParseProgress(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > 100 {
		return nil
	}
	return &n
}

// ParseETA accepts a YYYY-MM-DD calendar date.
func ParseETA(s string) *time.Time {
	t, err := time.Parse(ETALayout, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}

var fieldAliases = map[string]string{
	FieldSummary:   FieldSummary,
	FieldProgress:  FieldProgress,
	"progress_pct": FieldProgress,
	FieldBlockers:  FieldBlockers,
	FieldETA:       FieldETA,
	"eta_date":     FieldETA,
	FieldRAG:       FieldRAG,
	"status":       FieldRAG,
}

// fieldName resolves a block id such as "progress" or "progress_block" to a logical field.
func fieldName(blockID string) string {
	key := strings.ToLower(strings.TrimSpace(blockID))
	key = strings.TrimSuffix(key, "_block")
	key = strings.TrimSuffix(key, "_input")
	return fieldAliases[key]
}

func nonEmpty(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}
