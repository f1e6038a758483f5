package checklist

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dukerupert/cabinshare/internal/database"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

func makeDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:pPr><w:pStyle w:val="ListParagraph"/></w:pPr>`)
		for i, part := range strings.Split(p, "|") {
			if i > 0 {
				body.WriteString(`<w:r><w:tab/></w:r>`)
			}
			body.WriteString(`<w:r><w:t xml:space="preserve">` + part + `</w:t></w:r>`)
		}
		body.WriteString(`</w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	io.WriteString(w, body.String())
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestParagraphs(t *testing.T) {
	data := makeDocx(t, "Opening the cabin", "", "1.|Turn on the water", "• Light the  pilot")
	got, err := Paragraphs(data)
	if err != nil {
		t.Fatalf("Paragraphs: %v", err)
	}
	want := []string{"Opening the cabin", "1. Turn on the water", "• Light the pilot"}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParagraphsNotDocx(t *testing.T) {
	if _, err := Paragraphs([]byte("plain text")); !errors.Is(err, ErrNotDocx) {
		t.Errorf("err = %v, want ErrNotDocx", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.Create("other.txt")
	zw.Close()
	if _, err := Paragraphs(buf.Bytes()); !errors.Is(err, ErrNotDocx) {
		t.Errorf("zip without document.xml: err = %v", err)
	}
}

func TestStripMarker(t *testing.T) {
	tests := map[string]string{
		"• Close the damper":  "Close the damper",
		"- Drain the pipes":   "Drain the pipes",
		"[ ] Check the traps": "Check the traps",
		"3. Lock the shed":    "Lock the shed",
		"12) Empty fridge":    "Empty fridge",
		"b) Strip the beds":   "Strip the beds",
		"Bring firewood":      "Bring firewood",
		"2024 budget review":  "2024 budget review",
	}
	for in, want := range tests {
		if got := StripMarker(in); got != want {
			t.Errorf("StripMarker(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeLLM struct {
	configured bool
	items      []string
	err        error
}

func (f *fakeLLM) Configured() bool { return f.configured }

func (f *fakeLLM) CompleteJSON(_ context.Context, _, _ string, v any) error {
	if f.err != nil {
		return f.err
	}
	out := v.(*struct {
		Items []string `json:"items"`
	})
	out.Items = f.items
	return nil
}

func setupImporter(t *testing.T, llm Structurer) (*Importer, *store.ChecklistStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	user, err := store.NewUserStore(db).Create("admin@example.com", "Admin")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	org, err := store.NewOrganizationStore(db).Create(store.NewOrganization{Name: "Cabin"}, user.ID)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	checklists := store.NewChecklistStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewImporter(checklists, llm, logger), checklists, org.ID
}

func TestImportFallsBackToParagraphs(t *testing.T) {
	im, _, orgID := setupImporter(t, &fakeLLM{configured: true, err: errors.New("boom")})
	doc := makeDocx(t, "- Shut off water", "- Set thermostat to 50")

	res, err := im.Import(context.Background(), orgID, model.ChecklistClosing, "Closing", doc)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Source != "paragraphs" {
		t.Errorf("source = %q", res.Source)
	}
	if len(res.Checklist.Items) != 2 || res.Checklist.Items[1].Text != "Set thermostat to 50" {
		t.Errorf("items = %+v", res.Checklist.Items)
	}
}

func TestImportUsesLLM(t *testing.T) {
	im, checklists, orgID := setupImporter(t, &fakeLLM{configured: true, items: []string{"Unlock door", " Open  shutters ", ""}})
	doc := makeDocx(t, "Arrival", "When you arrive unlock the door and open the shutters.")

	res, err := im.Import(context.Background(), orgID, model.ChecklistArrival, "", doc)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Source != "llm" || res.Checklist.Title != "Arrival" {
		t.Errorf("result = %+v", res)
	}
	saved, err := checklists.GetByID(orgID, res.Checklist.ID)
	if err != nil || saved == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(saved.Items) != 2 || saved.Items[1].Text != "Open shutters" {
		t.Errorf("items = %+v", saved.Items)
	}
}

func TestImportRejectsBadInput(t *testing.T) {
	im, _, orgID := setupImporter(t, nil)
	if _, err := im.Import(context.Background(), orgID, "weekly", "x", makeDocx(t, "a")); !errors.Is(err, ErrInvalidType) {
		t.Errorf("err = %v, want ErrInvalidType", err)
	}
	if _, err := im.Import(context.Background(), orgID, model.ChecklistDaily, "x", makeDocx(t)); !errors.Is(err, ErrNoItems) {
		t.Errorf("err = %v, want ErrNoItems", err)
	}
}
