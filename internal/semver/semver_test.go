package semver

import "testing"

func mustParse(t *testing.T, s string) Version {
	t.Helper()
	v, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return v
}

func TestParseRejectsNumericPrereleaseLabel(t *testing.T) {
	if _, err := Parse("1.0.0-1"); err == nil {
		t.Fatalf("expected error parsing 1.0.0-1")
	}
}

func TestParseRoundTrip(t *testing.T) {
	cases := []string{"0.0.0", "1.2.3", "1.8.0-alpha", "1.8.0-alpha.2", "2.0.0-rc.3"}
	for _, s := range cases {
		v := mustParse(t, s)
		if got := v.String(); got != s {
			t.Errorf("String() = %q, want %q", got, s)
		}
	}
}

func TestBumpStableBoundary(t *testing.T) {
	cases := []struct {
		level Level
		want  string
	}{
		{Patch, "0.0.1"},
		{Minor, "0.1.0"},
		{Major, "1.0.0"},
	}
	base := mustParse(t, "0.0.0")
	for _, c := range cases {
		got := Bump(base, c.level)
		if got.String() != c.want {
			t.Errorf("Bump(0.0.0, %s) = %s, want %s", c.level, got, c.want)
		}
	}
}

func TestBumpPrereleaseIncrements(t *testing.T) {
	cases := []struct {
		from  string
		level Level
		want  string
	}{
		{"1.8.0-alpha", Patch, "1.8.0-alpha.1"},
		{"1.8.0-alpha.2", Major, "2.0.0-alpha"},
		{"2.0.0-rc.3", Minor, "2.0.0-rc.4"},
	}
	for _, c := range cases {
		got := Bump(mustParse(t, c.from), c.level)
		if got.String() != c.want {
			t.Errorf("Bump(%s, %s) = %s, want %s", c.from, c.level, got, c.want)
		}
	}
}

func TestCompareOrdersPrereleaseBeforeStable(t *testing.T) {
	stable := mustParse(t, "1.0.0")
	pre := mustParse(t, "1.0.0-alpha")
	if Compare(pre, stable) >= 0 {
		t.Fatalf("expected 1.0.0-alpha < 1.0.0")
	}
	if Compare(stable, pre) <= 0 {
		t.Fatalf("expected 1.0.0 > 1.0.0-alpha")
	}
}

func TestJoinTakesMaximum(t *testing.T) {
	if Join(Patch, Major) != Major {
		t.Fatalf("Join(Patch, Major) should be Major")
	}
	if Join(None, None) != None {
		t.Fatalf("Join(None, None) should be None")
	}
}

func TestValidLabel(t *testing.T) {
	valid := []string{"alpha", "next-1", "beta"}
	for _, l := range valid {
		if err := ValidLabel(l); err != nil {
			t.Errorf("ValidLabel(%q) unexpectedly failed: %v", l, err)
		}
	}
	invalid := []string{"", "123", "stable", "has space", "weird_char"}
	for _, l := range invalid {
		if err := ValidLabel(l); err == nil {
			t.Errorf("ValidLabel(%q) should have failed", l)
		}
	}
}

func TestAttachAndStripPrerelease(t *testing.T) {
	v := mustParse(t, "1.2.3")
	tagged := AttachPrerelease(v, "beta")
	if tagged.String() != "1.2.3-beta" {
		t.Fatalf("AttachPrerelease = %s", tagged)
	}
	stripped := StripPrerelease(tagged)
	if stripped.String() != "1.2.3" {
		t.Fatalf("StripPrerelease = %s", stripped)
	}
}
