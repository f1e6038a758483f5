// Package checklist turns Word documents into checklists.
package checklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

const (
	maxItems    = 200
	maxItemText = 500
)

var (
	ErrInvalidType = errors.New("invalid checklist type")
	ErrNoItems     = errors.New("document contains no checklist items")
)

// ValidType reports whether t is a known checklist type.
func ValidType(t string) bool {
	switch t {
	case model.ChecklistArrival, model.ChecklistDaily, model.ChecklistDeparture,
		model.ChecklistOpening, model.ChecklistClosing:
		return true
	}
	return false
}

// Structurer turns free text into ordered checklist items.
type Structurer interface {
	Configured() bool
	CompleteJSON(ctx context.Context, system, user string, v any) error
}

// Importer builds checklists from uploaded documents.
type Importer struct {
	checklists *store.ChecklistStore
	llm        Structurer
	logger     *slog.Logger
}

func NewImporter(checklists *store.ChecklistStore, llm Structurer, logger *slog.Logger) *Importer {
	return &Importer{checklists: checklists, llm: llm, logger: logger}
}

// ImportResult is the saved checklist and how its items were produced.
type ImportResult struct {
	Checklist *model.Checklist `json:"checklist"`
	Source    string           `json:"source"` // "llm" or "paragraphs"
}

// Import extracts the document's paragraphs, structures them into items and
// saves the checklist.
func (im *Importer) Import(ctx context.Context, organizationID int64, checklistType, title string, docx []byte) (*ImportResult, error) {
	if !ValidType(checklistType) {
		return nil, ErrInvalidType
	}
	paragraphs, err := Paragraphs(docx)
	if err != nil {
		return nil, err
	}
	if len(paragraphs) == 0 {
		return nil, ErrNoItems
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = paragraphs[0]
	}

	source := "paragraphs"
	var items []string
	if im.llm != nil && im.llm.Configured() {
		items, err = im.structure(ctx, checklistType, paragraphs)
		if err != nil {
			im.logger.Warn("checklist: llm structuring failed, using paragraphs", "error", err)
		} else {
			source = "llm"
		}
	}
	if len(items) == 0 {
		source = "paragraphs"
		items = ItemsFromParagraphs(paragraphs)
	}
	items = clean(items)
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	rows := make([]model.ChecklistItem, len(items))
	for i, text := range items {
		rows[i] = model.ChecklistItem{Text: text}
	}
	cl, err := im.checklists.Create(organizationID, checklistType, title, rows)
	if err != nil {
		return nil, fmt.Errorf("save checklist: %w", err)
	}
	return &ImportResult{Checklist: cl, Source: source}, nil
}

const structurePrompt = `You convert cabin procedure documents into checklists.
Return a JSON object {"items": ["..."]} listing each actionable step in order.
Keep the wording short and imperative. Omit headings, introductions and notes that are not steps.`

func (im *Importer) structure(ctx context.Context, checklistType string, paragraphs []string) ([]string, error) {
	var out struct {
		Items []string `json:"items"`
	}
	user := fmt.Sprintf("Checklist type: %s\n\n%s", checklistType, strings.Join(paragraphs, "\n"))
	if err := im.llm.CompleteJSON(ctx, structurePrompt, user, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ItemsFromParagraphs makes one item per paragraph with list markers removed.
func ItemsFromParagraphs(paragraphs []string) []string {
	items := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if s := StripMarker(p); s != "" {
			items = append(items, s)
		}
	}
	return items
}

// StripMarker removes a leading bullet, checkbox or list number such as
// "•", "-", "[ ]", "3.", "12)" or "b)".
func StripMarker(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"[ ]", "[x]", "[X]", "☐", "☑", "•", "◦", "▪", "‣", "–", "-", "*", "·"} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 && len(s) >= 2 && unicode.IsLetter(rune(s[0])) && (s[1] == ')' || s[1] == '.') && (len(s) == 2 || s[2] == ' ') {
		i = 1
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

func clean(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.Join(strings.Fields(it), " ")
		if it == "" {
			continue
		}
		if len(it) > maxItemText {
			it = it[:maxItemText]
		}
		out = append(out, it)
		if len(out) == maxItems {
			break
		}
	}
	return out
}
