package review

// Summary combines every derived rating statistic for a product.
type Summary struct {
	AverageRating float64
	ReviewCount   int
	Distribution  map[int]int
}

// Aggregate computes the average rating and count over a full review set.
// An empty set yields average 0, count 0. This is always a full recomputation
// from the source of truth, never an incremental running average.
func Aggregate(reviews []Review) (average float64, count int) {
	count = len(reviews)
	if count == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(count), count
}

// Distribution counts reviews per star value. Every star 1..5 is present in
// the result, so the counts always sum to len(reviews).
func Distribution(reviews []Review) map[int]int {
	dist := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	for _, r := range reviews {
		dist[r.Rating]++
	}
	return dist
}

// Summarize builds the full derived view over a review set.
func Summarize(reviews []Review) Summary {
	average, count := Aggregate(reviews)
	return Summary{
		AverageRating: average,
		ReviewCount:   count,
		Distribution:  Distribution(reviews),
	}
}
