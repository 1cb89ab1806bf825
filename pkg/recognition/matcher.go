package recognition

import "math"

// DefaultThreshold is the dlib distance commonly used for "same person".
const DefaultThreshold = 0.6

// Unknown is the name reported for faces that match nobody.
const Unknown = "Unknown"

// Candidate is one enrolled identity offered to the matcher.
type Candidate struct {
	Name       string
	Descriptor Descriptor
}

// MatchResult is the outcome of matching one query descriptor.
type MatchResult struct {
	Name     string
	Distance float64
	Known    bool
}

// Matcher performs exact nearest-neighbour matching with a distance threshold.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a Matcher. A non-positive threshold selects DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the maximum accepted distance.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match returns the gallery entry nearest to query. The match is accepted
// when its distance is <= the threshold; ties keep the earliest candidate.
// An empty gallery yields Unknown with an infinite distance.
func (m *Matcher) Match(query Descriptor, gallery []Candidate) MatchResult {
	best := MatchResult{Name: Unknown, Distance: math.Inf(1)}
	bestIdx := -1

	for i, c := range gallery {
		dist := EuclideanDistance(query, c.Descriptor)
		if dist < best.Distance {
			best.Distance = dist
			bestIdx = i
		}
	}

	if bestIdx >= 0 && best.Distance <= m.threshold {
		best.Name = gallery[bestIdx].Name
		best.Known = true
	}
	return best
}
