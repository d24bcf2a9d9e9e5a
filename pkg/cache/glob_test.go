package cache

import "testing"

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"user:*", "user:123", true},
		{"user:*", "org:123", false},
		{"user:?", "user:1", true},
		{"user:?", "user:12", false},
		{"*", "anything:at:all", true},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "aXXbYY", false},
	}
	for _, tc := range cases {
		if got := matchGlob(tc.pattern, tc.s); got != tc.want {
			t.Errorf("matchGlob(%q,%q) = %v, want %v", tc.pattern, tc.s, got, tc.want)
		}
	}
}
