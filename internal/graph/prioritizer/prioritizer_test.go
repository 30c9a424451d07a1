package prioritizer

import "testing"

func TestBlockedHostRejects(t *testing.T) {
	c := Candidate{
		URL:          "https://spam.test/x",
		Host:         "spam.test",
		BlockedHosts: map[string]struct{}{"spam.test": {}},
	}
	if got := Score(c); got != rejectScore {
		t.Fatalf("expected reject score %d, got %d", rejectScore, got)
	}
}

func TestBlockedExtensionRejects(t *testing.T) {
	c := Candidate{URL: "https://ok.test/file.exe", Host: "ok.test"}
	if got := Score(c); got != rejectScore {
		t.Fatalf("expected reject score %d for .exe, got %d", rejectScore, got)
	}
}

func TestSameHostBonus(t *testing.T) {
	base := Candidate{URL: "https://a.test/page.html", Host: "a.test", SourceHost: "b.test"}
	sameHost := base
	sameHost.SourceHost = "a.test"

	if Score(sameHost) <= Score(base) {
		t.Fatal("expected same-host link to score higher than cross-host link")
	}
}

func TestDepthPenalty(t *testing.T) {
	shallow := Candidate{URL: "https://a.test/p", Host: "a.test", Depth: 0}
	deep := shallow
	deep.Depth = 3
	if Score(deep) >= Score(shallow) {
		t.Fatal("expected deeper link to score lower")
	}
}

func TestNegativePathPattern(t *testing.T) {
	c := Candidate{URL: "https://a.test/admin/users", Host: "a.test"}
	if got := Score(c); got != basePriority {
		t.Fatalf("expected /admin/ penalty to cancel the extensionless bonus (100+50-50=100), got %d", got)
	}
}

func TestKeywordBonus(t *testing.T) {
	plain := Candidate{URL: "https://a.test/p", Host: "a.test", PageBody: "nothing special here"}
	withKeyword := plain
	withKeyword.PageBody = "this page is about golang and concurrency"
	withKeyword.Keywords = []string{"golang"}

	if Score(withKeyword) <= Score(plain) {
		t.Fatal("expected keyword match to increase score")
	}
}

func TestOverlappingPatternsBothApply(t *testing.T) {
	// /blog/ (+30) and /admin/ (-50) both match, so both adjust:
	// base 100 + extension 50 + 30 - 50 = 130.
	c := Candidate{URL: "https://a.test/blog/admin/page", Host: "a.test"}
	if got := Score(c); got != 130 {
		t.Fatalf("expected overlapping path patterns to both apply (130), got %d", got)
	}

	// "blog" (+25) and "login" (-25) in the link text cancel out.
	withText := Candidate{URL: "https://a.test/page", Host: "a.test", LinkText: "blog login"}
	plain := Candidate{URL: "https://a.test/page", Host: "a.test"}
	if Score(withText) != Score(plain) {
		t.Fatalf("expected overlapping text patterns to cancel: %d != %d", Score(withText), Score(plain))
	}
}

func TestScoreNeverNegativeExceptRejection(t *testing.T) {
	c := Candidate{
		URL:      "https://a.test/admin/login",
		Host:     "a.test",
		Depth:    5,
		LinkText: "login",
	}
	got := Score(c)
	if got < 0 {
		t.Fatalf("expected score floored at 0, got %d", got)
	}
}
