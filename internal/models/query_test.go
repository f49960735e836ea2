package models

import (
	"testing"
)

func TestAskQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     *AskQuery
		wantErr   bool
		wantLimit int
	}{
		{"empty query", &AskQuery{Query: ""}, true, 0},
		{"whitespace query", &AskQuery{Query: "  \t"}, true, 0},
		{"valid query", &AskQuery{Query: "maize yellow"}, false, 1},
		{"keeps limit", &AskQuery{Query: "x", Limit: 3}, false, 3},
		{"caps limit", &AskQuery{Query: "x", Limit: 200}, false, MaxAskLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", tt.query.Limit, tt.wantLimit)
			}
		})
	}
}

func TestAskQuery_ValidateTrims(t *testing.T) {
	q := &AskQuery{Query: "  maize  "}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if q.Query != "maize" {
		t.Errorf("query = %q", q.Query)
	}
}

func TestRecordQuery_Normalize(t *testing.T) {
	q := &RecordQuery{Offset: -3, Limit: 0, Text: " pest "}
	q.Normalize()
	if q.Offset != 0 || q.Limit != 50 || q.Text != "pest" {
		t.Errorf("normalized = %+v", q)
	}
	q = &RecordQuery{Limit: 10000}
	q.Normalize()
	if q.Limit != 500 {
		t.Errorf("limit cap: got %d", q.Limit)
	}
}

func TestRecordValueAndCapabilities(t *testing.T) {
	r := &Record{CustomerID: "c1", County: "Kakamega", About: "Crops", Category: "Maize", Response: "ok"}
	c := Capabilities{County: true, Category: true}
	cases := map[Field]string{
		FieldCustomerID: "c1",
		FieldCounty:     "Kakamega",
		FieldAbout:      "Crops",
		FieldCategory:   "Maize",
		FieldResponse:   "ok",
		Field("other"):  "",
	}
	for f, want := range cases {
		if got := r.Value(f); got != want {
			t.Errorf("Value(%s) = %q, want %q", f, got, want)
		}
	}
	if !c.Has(FieldCounty) || c.Has(FieldAbout) || c.Has(Field("other")) {
		t.Errorf("Has mismatch for %+v", c)
	}
}
