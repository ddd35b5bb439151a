package blob

import (
	"strings"
	"testing"
)

func TestAllowedImageType(t *testing.T) {
	for _, mimeType := range []string{"image/jpeg", "image/png", "image/gif", " IMAGE/PNG "} {
		if !AllowedImageType(mimeType) {
			t.Fatalf("%q should be allowed", mimeType)
		}
	}
	for _, mimeType := range []string{"image/svg+xml", "application/pdf", "text/html", ""} {
		if AllowedImageType(mimeType) {
			t.Fatalf("%q should be rejected", mimeType)
		}
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("Garden Photo (final).PNG")
	if strings.ContainsAny(key, " ()") {
		t.Fatalf("key must not keep unsafe characters: %q", key)
	}
	if !strings.HasSuffix(key, "Garden-Photo-final.PNG") {
		t.Fatalf("unexpected key %q", key)
	}
	other := ObjectKey("")
	if !strings.HasSuffix(other, "-image") {
		t.Fatalf("empty filename needs a fallback, got %q", other)
	}
}

func TestKeyFromURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:9000/initiative-images/1740000-garden.png": "1740000-garden.png",
		"https://cdn.example.org/bucket/a/b/c.png":                   "c.png",
		"http://localhost:9000/":                                     "",
		"":                                                           "",
	}
	for ref, want := range cases {
		if got := KeyFromURL(ref); got != want {
			t.Fatalf("KeyFromURL(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	long := strings.Repeat("a", 150) + ".png"
	out := sanitizeFilename(long)
	if len(out) != 100 {
		t.Fatalf("expected 100 chars, got %d", len(out))
	}
	if !strings.HasSuffix(out, ".png") {
		t.Fatalf("extension must survive truncation, got %q", out)
	}
}
