package keyword

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/kilimo/internal/models"
)

func testRecords() []*models.Record {
	return []*models.Record{
		{ID: "row:1", Question: "how to plant maize", Answer: "plant at onset of the long rains", County: "Nakuru", Category: "maize"},
		{ID: "row:2", Question: "best feed for dairy cows", Answer: "napier grass and dairy meal", County: "Kiambu", Category: "dairy"},
		{ID: "row:3", Question: "fall armyworm control", Answer: "spray early in the morning", County: "Nakuru", Category: "maize"},
	}
}

func newIndex(t *testing.T, records []*models.Record) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex()
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.IndexRecords(context.Background(), records); err != nil {
		t.Fatalf("IndexRecords: %v", err)
	}
	return idx
}

func TestBleveIndex_SearchFindsQuestion(t *testing.T) {
	idx := newIndex(t, testRecords())
	results, err := idx.Search(context.Background(), "Maize", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("expected question and category hits, got %d", len(results))
	}
	if results[0].ID != "row:1" {
		t.Errorf("first result ID = %q, want row:1", results[0].ID)
	}
}

func TestBleveIndex_SearchFindsAnswerAndCounty(t *testing.T) {
	idx := newIndex(t, testRecords())
	ctx := context.Background()

	results, err := idx.Search(ctx, "napier", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "row:2" {
		t.Errorf("answer search: got %+v", results)
	}

	results, err = idx.Search(ctx, "kiambu", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "row:2" {
		t.Errorf("county search: got %+v", results)
	}
}

func TestBleveIndex_QuestionBoost(t *testing.T) {
	records := []*models.Record{
		{ID: "a", Question: "weeding schedule", Answer: "remove weeds before the beans flower"},
		{ID: "b", Question: "beans spacing", Answer: "use rows"},
	}
	idx := newIndex(t, records)
	results, err := idx.Search(context.Background(), "beans", 10, &SearchOptions{QuestionBoost: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ID != "b" {
		t.Errorf("question match should rank first, got %+v", results)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newIndex(t, testRecords())
	ctx := context.Background()

	exact, err := idx.Search(ctx, "armyworn", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(exact) != 0 {
		t.Errorf("misspelling should not match without fuzzy, got %d", len(exact))
	}
	fuzzy, err := idx.Search(ctx, "armyworn", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) == 0 || fuzzy[0].ID != "row:3" {
		t.Errorf("fuzzy search: got %+v", fuzzy)
	}
}

func TestBleveIndex_LimitAndBlank(t *testing.T) {
	var records []*models.Record
	for i := 0; i < 1200; i++ {
		records = append(records, &models.Record{ID: fmt.Sprintf("row:%d", i), Question: "soil testing"})
	}
	idx := newIndex(t, records)
	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1200 {
		t.Errorf("DocCount = %d, want 1200", n)
	}
	results, err := idx.Search(context.Background(), "soil", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 5 {
		t.Errorf("limit: got %d", len(results))
	}
	blank, err := idx.Search(context.Background(), "   ", 5, nil)
	if err != nil || blank != nil {
		t.Errorf("blank query: got %v, %v", blank, err)
	}
}

var _ KeywordIndex = (*BleveIndex)(nil)
