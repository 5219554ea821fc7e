package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNullableDateUnmarshal(t *testing.T) {
	type payload struct {
		EndDate NullableDate `json:"end_date"`
	}

	var got payload
	if err := json.Unmarshal([]byte(`{"end_date": "2026-03-15"}`), &got); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if !got.EndDate.Valid || got.EndDate.Value == nil {
		t.Fatalf("expected valid date, got %+v", got.EndDate)
	}
	if !got.EndDate.Value.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %s", got.EndDate.Value)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{"end_date": null}`), &got); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !got.EndDate.Valid || got.EndDate.Value != nil {
		t.Fatalf("expected null to be valid but nil, got %+v", got.EndDate)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{}`), &got); err != nil {
		t.Fatalf("unmarshal missing: %v", err)
	}
	if got.EndDate.Valid {
		t.Fatalf("expected invalid flag for missing field, got %+v", got.EndDate)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{"end_date": "2026-03-15T10:00:00+02:00"}`), &got); err != nil {
		t.Fatalf("unmarshal rfc3339: %v", err)
	}
	if got.EndDate.Value.Hour() != 8 {
		t.Fatalf("expected UTC normalisation, got %s", got.EndDate.Value)
	}

	if err := json.Unmarshal([]byte(`{"end_date": "15/03/2026"}`), &got); err == nil {
		t.Fatalf("expected error for unsupported layout")
	}
}

func TestNotices(t *testing.T) {
	if n := InfoNotice("no changes to save"); n.Kind != NoticeInfo {
		t.Fatalf("unexpected kind %s", n.Kind)
	}
	if n := WarningNotice("clamped"); n.Kind != NoticeWarning || n.Message != "clamped" {
		t.Fatalf("unexpected notice %+v", n)
	}
}
