package drafter_test

import (
	"strings"
	"testing"

	"github.com/garnizeh/introdesk/pkg/drafter"
)

func TestRenderTemplate(t *testing.T) {
	out, err := drafter.RenderTemplate(
		`Intro for {{.FromName}}{{if .Company}} about {{.Company}}{{end}}.`,
		map[string]any{"FromName": "Nora Lang", "Company": "Acme Corp"},
	)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "Nora Lang") || !strings.Contains(out, "Acme Corp") {
		t.Fatalf("unexpected render: %q", out)
	}
}

func TestRenderTemplateOmitsEmptySections(t *testing.T) {
	out, err := drafter.RenderTemplate(
		`Intro{{if .Company}} about {{.Company}}{{end}}.`,
		map[string]any{"Company": ""},
	)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Intro." {
		t.Fatalf("expected empty section dropped, got %q", out)
	}
}

func TestRenderTemplateParseError(t *testing.T) {
	if _, err := drafter.RenderTemplate(`{{.Broken`, nil); err == nil {
		t.Fatal("expected parse error")
	}
}
