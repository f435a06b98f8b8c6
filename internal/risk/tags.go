// Package risk computes the weighted, distance-decayed risk score from a
// Tracer's output (spec.md §4.5).
package risk

// Tag is a categorical label attached to an address by the provider.
type Tag string

const (
	TagMixer      Tag = "MIXER"
	TagDarknet    Tag = "DARKNET"
	TagSanctioned Tag = "SANCTIONED"
	TagHack       Tag = "HACK"
	TagScam       Tag = "SCAM"
	TagGambling   Tag = "GAMBLING"
	TagExchange   Tag = "EXCHANGE"
	TagUnknown    Tag = "UNKNOWN"
)

// weights maps each tag to its signed contribution to the raw score
// (spec.md §4.5). UNKNOWN is weight 0 and never flagged — the spec
// explicitly resolves the reference implementation's ambiguity here.
var weights = map[Tag]float64{
	TagMixer:      1.0,
	TagDarknet:    1.0,
	TagSanctioned: 1.0,
	TagHack:       0.9,
	TagScam:       0.8,
	TagGambling:   0.4,
	TagExchange:   -0.2,
	TagUnknown:    0.0,
}

// Weight returns the configured weight for tag, or 0 for an unrecognized
// value (treated the same as UNKNOWN).
func Weight(tag Tag) float64 {
	return weights[tag]
}

// definitive is the set of tags that make a TraceNode terminal: the BFS
// does not expand past a node carrying one of these (spec.md §3 invariants).
var definitive = map[Tag]bool{
	TagMixer:      true,
	TagDarknet:    true,
	TagSanctioned: true,
	TagHack:       true,
	TagScam:       true,
	TagGambling:   true,
	TagExchange:   true,
}

// IsDefinitive reports whether tag alone makes a node terminal.
func IsDefinitive(tag Tag) bool {
	return definitive[tag]
}

// AnyDefinitive reports whether any tag in tags is in the definitive set.
func AnyDefinitive(tags []Tag) bool {
	for _, t := range tags {
		if IsDefinitive(t) {
			return true
		}
	}
	return false
}

// BestDefinitive picks the single definitive tag to flag a node with when
// it carries more than one (spec.md §8.2: an address appears in
// flagged_entities at most once). Highest |weight| wins; ties break on
// tag name so the choice is deterministic.
func BestDefinitive(tags []Tag) (Tag, bool) {
	var best Tag
	var bestWeight float64
	found := false

	for _, t := range tags {
		if !IsDefinitive(t) {
			continue
		}
		w := Weight(t)
		if !found {
			best, bestWeight, found = t, w, true
			continue
		}
		aw, abw := w, bestWeight
		if aw < 0 {
			aw = -aw
		}
		if abw < 0 {
			abw = -abw
		}
		if aw > abw || (aw == abw && t < best) {
			best, bestWeight = t, w
		}
	}

	return best, found
}
