package decode

import (
	"strings"
	"testing"

	"github.com/otbreview/otbreview/internal/domain"
)

func TestWritePGNIncludesHeadersInCanonicalOrder(t *testing.T) {
	g := BuildGame(map[string]string{
		"Result": "1-0",
		"White":  "otbreview",
		"Black":  "otbreview",
		"Event":  "Club Night",
	}, nil)

	var sb strings.Builder
	if err := WritePGN(&sb, g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := sb.String()
	eventIdx := strings.Index(out, "[Event")
	whiteIdx := strings.Index(out, "[White")
	resultIdx := strings.Index(out, "[Result")
	if eventIdx == -1 || whiteIdx == -1 || resultIdx == -1 {
		t.Fatalf("expected Event, White and Result headers present in:\n%s", out)
	}
	if !(eventIdx < whiteIdx && whiteIdx < resultIdx) {
		t.Errorf("expected canonical header order Event < White < Result, got:\n%s", out)
	}
}

func TestWritePGNRendersMoveNumbersAndUncertainComment(t *testing.T) {
	moves := []domain.MoveRecord{
		{Ply: 1, SAN: "e4"},
		{Ply: 2, SAN: "e5"},
		{Ply: 3, Uncertain: true},
	}
	g := BuildGame(map[string]string{"Result": "*"}, moves)

	var sb strings.Builder
	if err := WritePGN(&sb, g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := sb.String()
	if !strings.Contains(out, "1. e4 e5") {
		t.Errorf("expected move text '1. e4 e5', got:\n%s", out)
	}
	if !strings.Contains(out, "{??}") {
		t.Errorf("expected uncertain move to render a {??} comment, got:\n%s", out)
	}
}

func TestWriteMovesJSONIncludesSANField(t *testing.T) {
	moves := []domain.MoveRecord{
		{Ply: 1, SAN: "e4", UCI: "e2e4"},
	}
	var sb strings.Builder
	if err := WriteMovesJSON(&sb, moves); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sb.String(), "\"SAN\": \"e4\"") {
		t.Errorf("expected SAN field in JSON output, got:\n%s", sb.String())
	}
}
