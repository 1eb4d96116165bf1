package ingest

import "testing"

const validID = "UCabcdefghijklmnopqrstuv"

func TestExtractChannelID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "bare id", input: validID, want: validID, wantOK: true},
		{name: "bare id with spaces", input: "  " + validID + "\t", want: validID, wantOK: true},
		{name: "full url", input: "https://www.youtube.com/channel/" + validID, want: validID, wantOK: true},
		{name: "url with suffix", input: "https://youtube.com/channel/" + validID + "/videos", want: validID, wantOK: true},
		{name: "case-insensitive path", input: "https://youtube.com/CHANNEL/abc_-123", want: "abc_-123", wantOK: true},
		{name: "short bare id", input: "UCshort", wantOK: false},
		{name: "wrong prefix", input: "XXabcdefghijklmnopqrstuv", wantOK: false},
		{name: "handle url", input: "https://youtube.com/@somebody", wantOK: false},
		{name: "empty", input: "", wantOK: false},
		{name: "whitespace", input: "   ", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractChannelID(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromFields_URLWins(t *testing.T) {
	other := "UCzzzzzzzzzzzzzzzzzzzzzz"

	got, ok := FromFields(validID, "https://youtube.com/channel/"+other)
	if !ok {
		t.Fatal("expected match")
	}
	if got != other {
		t.Errorf("got %q, want id from url %q", got, other)
	}
}

func TestFromFields_FallbackToID(t *testing.T) {
	got, ok := FromFields(validID, "https://youtube.com/@handle")
	if !ok || got != validID {
		t.Errorf("got (%q, %v), want (%q, true)", got, ok, validID)
	}
}

func TestFromFields_NoMatch(t *testing.T) {
	if _, ok := FromFields("nope", ""); ok {
		t.Error("expected no match")
	}
}
