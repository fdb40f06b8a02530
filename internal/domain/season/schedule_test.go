package season

import (
	"fmt"
	"testing"
)

func clubSet(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("club-%02d", i+1)
	}
	return ids
}

func TestRoundRobinFullCalendar(t *testing.T) {
	ids := clubSet(ClubsPerTier)

	calendar, err := RoundRobin(ids)
	if err != nil {
		t.Fatalf("round robin: %v", err)
	}

	if len(calendar) != TotalMatchdays {
		t.Fatalf("matchdays = %d, want %d", len(calendar), TotalMatchdays)
	}

	// Every club appears exactly once per matchday.
	for md := 1; md <= TotalMatchdays; md++ {
		pairings := calendar[md]
		if len(pairings) != FixturesPerMatchday {
			t.Fatalf("matchday %d has %d pairings, want %d", md, len(pairings), FixturesPerMatchday)
		}
		seen := make(map[string]bool, ClubsPerTier)
		for _, p := range pairings {
			if p.HomeClubID == p.AwayClubID {
				t.Fatalf("matchday %d: club %s plays itself", md, p.HomeClubID)
			}
			if seen[p.HomeClubID] || seen[p.AwayClubID] {
				t.Fatalf("matchday %d: a club appears twice", md)
			}
			seen[p.HomeClubID] = true
			seen[p.AwayClubID] = true
		}
	}

	// Each ordered pairing occurs exactly once over the season.
	meetings := make(map[string]int)
	for _, pairings := range calendar {
		for _, p := range pairings {
			meetings[p.HomeClubID+"|"+p.AwayClubID]++
		}
	}
	want := ClubsPerTier * (ClubsPerTier - 1)
	if len(meetings) != want {
		t.Fatalf("distinct ordered pairings = %d, want %d", len(meetings), want)
	}
	for key, count := range meetings {
		if count != 1 {
			t.Fatalf("pairing %s occurs %d times", key, count)
		}
	}
}

func TestRoundRobinSecondHalfMirrorsFirst(t *testing.T) {
	ids := clubSet(ClubsPerTier)

	calendar, err := RoundRobin(ids)
	if err != nil {
		t.Fatalf("round robin: %v", err)
	}

	half := TotalMatchdays / 2
	for md := 1; md <= half; md++ {
		first := calendar[md]
		second := calendar[md+half]
		if len(first) != len(second) {
			t.Fatalf("matchday %d and %d differ in size", md, md+half)
		}
		for i, p := range first {
			m := second[i]
			if m.HomeClubID != p.AwayClubID || m.AwayClubID != p.HomeClubID {
				t.Fatalf("matchday %d pairing %d is not mirrored at %d", md, i, md+half)
			}
		}
	}
}

func TestRoundRobinIsDeterministic(t *testing.T) {
	ids := clubSet(ClubsPerTier)
	shuffled := append([]string(nil), ids...)
	shuffled[0], shuffled[len(shuffled)-1] = shuffled[len(shuffled)-1], shuffled[0]

	a, err := RoundRobin(ids)
	if err != nil {
		t.Fatalf("round robin: %v", err)
	}
	b, err := RoundRobin(shuffled)
	if err != nil {
		t.Fatalf("round robin shuffled: %v", err)
	}

	for md := 1; md <= TotalMatchdays; md++ {
		for i := range a[md] {
			if a[md][i] != b[md][i] {
				t.Fatalf("matchday %d differs under input reordering", md)
			}
		}
	}
}

func TestRoundRobinRejectsBadInput(t *testing.T) {
	if _, err := RoundRobin(clubSet(23)); err == nil {
		t.Fatal("expected error for odd club count")
	}
	if _, err := RoundRobin(nil); err == nil {
		t.Fatal("expected error for empty club set")
	}
	dup := clubSet(4)
	dup[3] = dup[0]
	if _, err := RoundRobin(dup); err == nil {
		t.Fatal("expected error for duplicate club ids")
	}
}

func TestMatchdayPairings(t *testing.T) {
	ids := clubSet(ClubsPerTier)

	pairings, err := MatchdayPairings(ids, 1)
	if err != nil {
		t.Fatalf("matchday pairings: %v", err)
	}
	if len(pairings) != FixturesPerMatchday {
		t.Fatalf("pairings = %d, want %d", len(pairings), FixturesPerMatchday)
	}

	if _, err := MatchdayPairings(ids, TotalMatchdays+1); err == nil {
		t.Fatal("expected error for matchday outside the calendar")
	}
}
