package domain

import "testing"

func TestArbitrateRoleExactlyOneOfferer(t *testing.T) {
	ids := []Identity{"a1", "b3", "A", "zz", "0f9c", "0f9d", "conn-1", "conn-10", "é"}
	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				continue
			}
			ra := ArbitrateRole(a, b)
			rb := ArbitrateRole(b, a)
			if (ra == RoleOfferer) == (rb == RoleOfferer) {
				t.Errorf("ArbitrateRole(%q,%q)=%s and ArbitrateRole(%q,%q)=%s, want exactly one offerer", a, b, ra, b, a, rb)
			}
			if again := ArbitrateRole(a, b); again != ra {
				t.Errorf("ArbitrateRole(%q,%q) not deterministic: %s then %s", a, b, ra, again)
			}
		}
	}
}

func TestArbitrateRoleGreaterIdentityOffers(t *testing.T) {
	if got := ArbitrateRole("b3", "a1"); got != RoleOfferer {
		t.Errorf("ArbitrateRole(b3, a1) = %s, want offerer", got)
	}
	if got := ArbitrateRole("a1", "b3"); got != RoleAnswerer {
		t.Errorf("ArbitrateRole(a1, b3) = %s, want answerer", got)
	}
}

func TestPartialCaptionString(t *testing.T) {
	p := PartialCaption{Text: "こんにちは", Translation: "你好"}
	if got, want := p.String(), "こんにちは → 你好"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
