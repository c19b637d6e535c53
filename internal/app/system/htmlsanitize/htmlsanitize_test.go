package htmlsanitize_test

import (
	"testing"

	"github.com/dalemusser/codestreak/internal/app/system/htmlsanitize"
)

func TestStripTags_Empty(t *testing.T) {
	if got := htmlsanitize.StripTags(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestStripTags_PlainText(t *testing.T) {
	if got := htmlsanitize.StripTags("  Ann Lee "); got != "Ann Lee" {
		t.Errorf("expected trimmed plain text, got %q", got)
	}
}

func TestStripTags_RemovesScript(t *testing.T) {
	got := htmlsanitize.StripTags("Ann<script>alert('xss')</script>")
	if got != "Ann" {
		t.Errorf("expected script removed, got %q", got)
	}
}

func TestStripTags_RemovesFormatting(t *testing.T) {
	got := htmlsanitize.StripTags("<b>Bold</b> <i>move</i>")
	if got != "Bold move" {
		t.Errorf("expected tags stripped, got %q", got)
	}
}

func TestStripTags_KeepsAmpersand(t *testing.T) {
	got := htmlsanitize.StripTags("Tom & Jerry")
	if got != "Tom & Jerry" {
		t.Errorf("expected ampersand preserved, got %q", got)
	}
}

func TestStripAll(t *testing.T) {
	got := htmlsanitize.StripAll([]string{"<em>go</em>", "api"})
	if len(got) != 2 || got[0] != "go" || got[1] != "api" {
		t.Errorf("unexpected result %v", got)
	}
	if htmlsanitize.StripAll(nil) != nil {
		t.Error("expected nil for nil input")
	}
}
