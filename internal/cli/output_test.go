package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

var docs = []models.Document{
	{ID: "d1", Name: "france.pdf", OwnerID: "u1", ChunkCount: 2, UploadTime: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)},
	{ID: "d2", Name: "rivers.docx", OwnerID: "u1", ChunkCount: 1, UploadTime: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)},
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	out := models.Outcome{Kind: models.OutcomeAnswer, State: models.StateInChat, Text: "Paris."}
	if err := Write(&buf, OutputJSON, out, "ignored"); err != nil {
		t.Fatal(err)
	}
	var decoded models.Outcome
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Kind != models.OutcomeAnswer || decoded.Text != "Paris." {
		t.Errorf("decoded: %+v", decoded)
	}

	buf.Reset()
	if err := Write(&buf, OutputText, out, "Paris."); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "Paris.\n" {
		t.Errorf("text output: %q", buf.String())
	}
}

func TestFormatDocuments(t *testing.T) {
	got := FormatDocuments(docs, "d2")
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: %q", got)
	}
	if !strings.HasPrefix(lines[0], "  1. france.pdf") || !strings.Contains(lines[0], "2024-05-01 09:30") {
		t.Errorf("line 0: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "* 2. rivers.docx") {
		t.Errorf("line 1: %q", lines[1])
	}
	if FormatDocuments(nil, "") != "No documents." {
		t.Error("empty list")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		1024:    "1.0 KiB",
		1536:    "1.5 KiB",
		5 << 20: "5.0 MiB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	got := FormatStatus(models.Status{Documents: 3, Sessions: 2, Vectors: 40, UploadBytes: 2048})
	for _, want := range []string{"Documents:    3", "Vectors:      40", "2.0 KiB"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestResolveDocument(t *testing.T) {
	tests := []struct {
		ref    string
		wantID string
		ok     bool
	}{
		{"d2", "d2", true},
		{"1", "d1", true},
		{" 2 ", "d2", true},
		{"3", "", false},
		{"0", "", false},
		{"rivers.docx", "d2", true},
		{"1abc", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveDocument(docs, tt.ref)
		if ok != tt.ok || got.ID != tt.wantID {
			t.Errorf("ResolveDocument(%q) = %q, %v", tt.ref, got.ID, ok)
		}
	}
}
