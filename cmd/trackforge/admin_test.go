package main

import "testing"

func TestParseColumns(t *testing.T) {
	cols, err := parseColumns("todo:To Do, doing , done:Done")
	if err != nil {
		t.Fatalf("parseColumns: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(cols))
	}
	if cols[0].ID != "todo" || cols[0].Name != "To Do" {
		t.Errorf("unexpected first column %+v", cols[0])
	}
	if cols[1].ID != "doing" || cols[1].Name != "doing" {
		t.Errorf("expected name to default to id, got %+v", cols[1])
	}
}

func TestParseColumnsErrors(t *testing.T) {
	for _, in := range []string{"", " , ", ":Nameless", "a:A,a:Again"} {
		if _, err := parseColumns(in); err == nil {
			t.Errorf("%q: expected error", in)
		}
	}
}

func TestRunAdminUnknownCommand(t *testing.T) {
	if err := runAdmin([]string{"bogus"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := runAdmin(nil); err != nil {
		t.Fatalf("help should not fail: %v", err)
	}
}
