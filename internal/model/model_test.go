package model

import "testing"

func i64(v int64) *int64 { return &v }

func TestPass_Status(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		p         Pass
		wantValid bool
		wantText  string
	}{
		{"active", Pass{Active: true}, true, StatusActive},
		{"revoked while active", Pass{Active: true, RevokedAt: i64(1700000100)}, false, StatusRevoked},
		{"inactive", Pass{Active: false}, false, StatusInactive},
		{"revoked and inactive", Pass{Active: false, RevokedAt: i64(0)}, false, StatusRevoked},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.p.IsValidNow(); got != tc.wantValid {
				t.Fatalf("IsValidNow=%v want %v", got, tc.wantValid)
			}
			if got := tc.p.StatusText(); got != tc.wantText {
				t.Fatalf("StatusText=%q want %q", got, tc.wantText)
			}
		})
	}
}

func TestPass_StatusRecomputedAfterCopy(t *testing.T) {
	t.Parallel()

	p := Pass{Active: true}
	q := p
	q.RevokedAt = i64(5)
	if p.StatusText() != StatusActive || q.StatusText() != StatusRevoked {
		t.Fatalf("status leaked between copies: %s / %s", p.StatusText(), q.StatusText())
	}
}
