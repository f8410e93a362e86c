package solve

import "testing"

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in   string
		want PackedVersion
	}{
		{"1.2.3", PackVersion(1, 2, 3)},
		{"v1.2.3", PackVersion(1, 2, 3)},
		{"=1.2.3", PackVersion(1, 2, 3)},
		{"  1.2.3  ", PackVersion(1, 2, 3)},
		{"1.2.3-beta.1", PackVersion(1, 2, 3)},
		{"1.2.3+build.5", PackVersion(1, 2, 3)},
		{"1.2", PackVersion(1, 2, 0)},
		{"1", PackVersion(1, 0, 0)},
		{"0.0.0", 0},
		{"10.20.30", PackVersion(10, 20, 30)},
	}
	for _, c := range cases {
		got, err := ParseVersion(c.in)
		if err != nil {
			t.Errorf("ParseVersion(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseVersion(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestParseVersionErrors(t *testing.T) {
	for _, in := range []string{"", "banana", "1.x", "x", "1.2.3.4", "1..2", "1.2a"} {
		if _, err := ParseVersion(in); err == nil {
			t.Errorf("ParseVersion(%q) succeeded, want error", in)
		}
	}

	_, err := ParseVersion("not a version")
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("error is %T, want *ParseError", err)
	}
	if pe.Input != "not a version" {
		t.Errorf("ParseError.Input = %q", pe.Input)
	}
}

func TestPackedVersionOrdering(t *testing.T) {
	order := []string{"0.0.1", "0.1.0", "1.2.3", "1.2.10", "1.10.0", "2.0.0"}
	for i := 1; i < len(order); i++ {
		lo := mustVersion(t, order[i-1])
		hi := mustVersion(t, order[i])
		if lo >= hi {
			t.Errorf("%s is not below %s (%d >= %d)", order[i-1], order[i], lo, hi)
		}
	}
	if mustVersion(t, "2.0.0") >= MaxVersion {
		t.Error("concrete version not below MaxVersion")
	}
}

func TestPackedVersionComponents(t *testing.T) {
	v := PackVersion(3, 14, 159)
	if v.Major() != 3 || v.Minor() != 14 || v.Patch() != 159 {
		t.Errorf("components = %d.%d.%d", v.Major(), v.Minor(), v.Patch())
	}
	if v.String() != "3.14.159" {
		t.Errorf("String() = %q", v.String())
	}
	if MaxVersion.String() != "max" {
		t.Errorf("MaxVersion.String() = %q", MaxVersion.String())
	}
}

func TestPackVersionClampsOversizedComponents(t *testing.T) {
	v := PackVersion(1<<25, 0, 0)
	if v.Major() != partMask {
		t.Errorf("oversized major packed to %d, want %d", v.Major(), uint64(partMask))
	}
}

func TestParseVersionOverflowRejected(t *testing.T) {
	if _, err := ParseVersion("99999999.0.0"); err == nil {
		t.Error("component beyond 20 bits parsed, want error")
	}
}
