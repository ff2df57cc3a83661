package allocator

import "sort"

// RankEligible returns the eligible verdicts ordered best first:
// lowest cost, then longest idle (never assigned first), then member ID
func RankEligible(verdicts []Eligibility) []Eligibility {
	ranked := make([]Eligibility, 0, len(verdicts))
	for _, v := range verdicts {
		if v.IsEligible() {
			ranked = append(ranked, v)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Cost != b.Cost {
			return a.Cost < b.Cost
		}
		if a.LastAssigned != b.LastAssigned {
			// "" sorts before any date
			return a.LastAssigned < b.LastAssigned
		}
		return a.MemberID < b.MemberID
	})

	return ranked
}
