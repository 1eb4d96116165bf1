package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/shaiso/Bulksub/internal/domain"
)

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Título":        "titulo",
		"  ID do Canal ": "id do canal",
		"Channel URL":   "channel url",
	}
	for in, want := range tests {
		if got := NormalizeHeader(in); got != want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectColumns(t *testing.T) {
	cols := DetectColumns([]string{"Título", "URL do canal", "ID do canal"})
	if cols.ID != 2 || cols.URL != 1 || cols.Title != 0 {
		t.Errorf("unexpected columns: %+v", cols)
	}

	cols = DetectColumns([]string{"name", "notes"})
	if cols.HasSource() {
		t.Errorf("expected no source columns, got %+v", cols)
	}
}

func TestParseCSV_DedupAndOrder(t *testing.T) {
	a := "UCaaaaaaaaaaaaaaaaaaaaaa"
	b := "UCbbbbbbbbbbbbbbbbbbbbbb"
	input := "Channel Id,Channel Url,Channel Title\n" +
		a + ",,First\n" +
		"\n" +
		",https://www.youtube.com/channel/" + b + ",Second\n" +
		a + ",,Duplicate\n" +
		"garbage,,Skipped\n"

	entries, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []domain.Entry{
		{ChannelID: a, Title: "First"},
		{ChannelID: b, Title: "Second", URL: "https://www.youtube.com/channel/" + b},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(entries), entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestParseCSV_BOMAndShortRows(t *testing.T) {
	a := "UCaaaaaaaaaaaaaaaaaaaaaa"
	input := "\ufeffID do Canal,Título\n" + a + "\n"

	entries, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ChannelID != a || entries[0].Title != "" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{name: "empty input", input: "", want: ErrEmptyCSV},
		{name: "header only", input: "channel id,title\n", want: ErrEmptyCSV},
		{name: "no id column", input: "name,notes\nfoo,bar\n", want: ErrNoIDColumn},
		{name: "no valid rows", input: "channel id\nnope\n", want: ErrNoEntries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNormalizeEntries(t *testing.T) {
	a := "UCaaaaaaaaaaaaaaaaaaaaaa"
	b := "UCbbbbbbbbbbbbbbbbbbbbbb"

	entries, err := NormalizeEntries([]domain.Entry{
		{ChannelID: " " + a + " ", Title: " A "},
		{URL: "https://youtube.com/channel/" + b},
		{ChannelID: a},
		{ChannelID: "bad"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ChannelID != a || entries[0].Title != "A" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].ChannelID != b {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}

	if _, err := NormalizeEntries([]domain.Entry{{ChannelID: "bad"}}); !errors.Is(err, ErrNoEntries) {
		t.Errorf("expected ErrNoEntries, got %v", err)
	}
}
