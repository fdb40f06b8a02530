package season

import (
	"fmt"
	"sort"
)

// Pairing is one fixture slot produced by the scheduler.
type Pairing struct {
	HomeClubID string
	AwayClubID string
}

// RoundRobin builds the full double round-robin calendar for an even
// set of clubs using the circle method: club[0] stays fixed, the rest
// rotate one position per round. The second half mirrors the first with
// home and away swapped. The fixed club alternates home/away by round
// parity so it does not play every round at home.
//
// Input order does not matter; clubs are sorted for stability. The
// result maps matchday (1-based) to its pairings.
func RoundRobin(clubIDs []string) (map[int][]Pairing, error) {
	n := len(clubIDs)
	if n < 2 || n%2 != 0 {
		return nil, fmt.Errorf("round robin needs an even club count >= 2, got %d", n)
	}

	ids := append([]string(nil), clubIDs...)
	sort.Strings(ids)

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate club id %s", id)
		}
		seen[id] = struct{}{}
	}

	rounds := n - 1
	rotating := append([]string(nil), ids[1:]...)
	calendar := make(map[int][]Pairing, 2*rounds)

	for round := 0; round < rounds; round++ {
		pairings := make([]Pairing, 0, n/2)

		// Fixed club against the head of the rotation; parity decides
		// which side hosts.
		if round%2 == 0 {
			pairings = append(pairings, Pairing{HomeClubID: ids[0], AwayClubID: rotating[0]})
		} else {
			pairings = append(pairings, Pairing{HomeClubID: rotating[0], AwayClubID: ids[0]})
		}

		for i := 1; i < n/2; i++ {
			home := rotating[i]
			away := rotating[len(rotating)-i]
			if i%2 == 1 {
				home, away = away, home
			}
			pairings = append(pairings, Pairing{HomeClubID: home, AwayClubID: away})
		}

		calendar[round+1] = pairings

		mirrored := make([]Pairing, 0, n/2)
		for _, p := range pairings {
			mirrored = append(mirrored, Pairing{HomeClubID: p.AwayClubID, AwayClubID: p.HomeClubID})
		}
		calendar[round+1+rounds] = mirrored

		// Rotate: last element moves to the front of the rotating list.
		rotating = append([]string{rotating[len(rotating)-1]}, rotating[:len(rotating)-1]...)
	}

	return calendar, nil
}

// MatchdayPairings returns the pairings for a single matchday without
// materializing the whole calendar elsewhere.
func MatchdayPairings(clubIDs []string, matchday int) ([]Pairing, error) {
	calendar, err := RoundRobin(clubIDs)
	if err != nil {
		return nil, err
	}

	pairings, ok := calendar[matchday]
	if !ok {
		return nil, fmt.Errorf("matchday %d outside calendar of %d rounds", matchday, len(calendar))
	}

	return pairings, nil
}
