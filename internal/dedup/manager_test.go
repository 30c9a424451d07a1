package dedup

import (
	"testing"

	"github.com/rohmanhakim/canopy-go/internal/dedup/contenthash"
)

func TestShouldCrawlAtMostOnce(t *testing.T) {
	m := New(DefaultConfig())

	seeds := []string{
		"https://example.com",
		"https://EXAMPLE.com/",
		"https://example.com?utm_source=x",
	}

	accepted := 0
	for _, s := range seeds {
		ok, _, _ := m.ShouldCrawl(s)
		if ok {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly 1 acceptance across canonically-equivalent seeds, got %d", accepted)
	}

	snap := m.Snapshot()
	if snap.DuplicateURLs != 2 {
		t.Fatalf("expected 2 duplicate URLs counted, got %d", snap.DuplicateURLs)
	}
}

func TestShouldCrawlRejectsRepeat(t *testing.T) {
	m := New(DefaultConfig())

	ok, canonical, reason := m.ShouldCrawl("https://a.test/x")
	if !ok || reason != ReasonNovel {
		t.Fatalf("first call should accept, got ok=%v reason=%q", ok, reason)
	}

	ok2, canonical2, reason2 := m.ShouldCrawl("https://a.test/x")
	if ok2 {
		t.Fatal("repeat call must be rejected")
	}
	if canonical2 != canonical {
		t.Fatalf("canonical forms should match: %q vs %q", canonical, canonical2)
	}
	if reason2 != ReasonDuplicateURL {
		t.Fatalf("expected ReasonDuplicateURL, got %q", reason2)
	}
}

func TestIsDuplicateContentCountsAreTracked(t *testing.T) {
	m := New(DefaultConfig())

	body := []byte("<html><body>hi</body></html>")
	dup, _ := m.IsDuplicateContent(body, "https://a.test/1", contenthash.KindHTML)
	if dup {
		t.Fatal("first sight should not be a duplicate")
	}
	dup, first := m.IsDuplicateContent(body, "https://a.test/2", contenthash.KindHTML)
	if !dup || first != "https://a.test/1" {
		t.Fatalf("expected duplicate pointing at first URL, got dup=%v first=%q", dup, first)
	}

	snap := m.Snapshot()
	if snap.DuplicateContent != 1 {
		t.Fatalf("expected 1 duplicate content counted, got %d", snap.DuplicateContent)
	}
}

func TestNoBloomStillDeduplicatesCorrectly(t *testing.T) {
	m := New(Config{UseBloom: false, WatermarkThreshold: 10})
	ok, _, _ := m.ShouldCrawl("https://a.test/1")
	if !ok {
		t.Fatal("expected first visit to be accepted")
	}
	ok2, _, _ := m.ShouldCrawl("https://a.test/1")
	if ok2 {
		t.Fatal("expected repeat visit to be rejected even without the bloom pre-filter")
	}
}
