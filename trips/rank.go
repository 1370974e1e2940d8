package trips

import "sort"

// Rank orders itineraries by total fare, cheapest first. Ties keep their
// input order.
func Rank(items []Itinerary) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].FullFare < items[j].FullFare
	})
}
