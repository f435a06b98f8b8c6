package risk

import (
	"fmt"
	"math"
	"sort"
)

// DefaultContributionK is the log-damping constant from spec.md §4.5.
// score.contribution_K in the configuration table overrides it.
const DefaultContributionK = 3.0

// Level is the categorical bucket a numeric score maps to.
type Level string

const (
	LevelSafe     Level = "SAFE"
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// levelFor maps an integer score in [0,100] to its Level (spec.md §4.5).
func levelFor(score int) Level {
	switch {
	case score < 20:
		return LevelSafe
	case score < 40:
		return LevelLow
	case score < 60:
		return LevelMedium
	case score < 80:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// FlaggedEntity is one terminal, tagged node surfaced by the Tracer.
type FlaggedEntity struct {
	Address      string
	Tag          Tag
	Distance     int // hops from origin, >= 1
	Contribution float64
	Label        string // optional, provider-supplied
}

// decay returns 0.5^(distance-1): distance 1 = 1.0, distance 2 = 0.5, ...
func decay(distance int) float64 {
	return math.Pow(0.5, float64(distance-1))
}

// damped caps the influence of a single contribution via log1p/K, clamped
// to at most 1.0 (spec.md §4.5).
func damped(contribution, k float64) float64 {
	if k <= 0 {
		k = DefaultContributionK
	}
	v := math.Log1p(contribution) / k
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// Report is the output of Score: the numeric/categorical result plus the
// human-readable reasons that justify it.
type Report struct {
	Score   int
	Level   Level
	Reasons []string
}

// Score is a pure function of (flagged, unflaggedCount, circularPaths);
// it never fails (spec.md §7 "The Risk Scorer is pure and does not fail").
// contributionK is score.contribution_K from configuration; pass <= 0 to
// use DefaultContributionK.
func Score(flagged []FlaggedEntity, unflaggedCount, circularPaths int, contributionK float64) Report {
	type weighted struct {
		entity FlaggedEntity
		wd     float64 // W(tag) * decay(distance), signed
	}

	ws := make([]weighted, 0, len(flagged))
	var raw float64
	for _, f := range flagged {
		w := Weight(f.Tag)
		d := decay(f.Distance)
		raw += w * d * damped(f.Contribution, contributionK)
		ws = append(ws, weighted{entity: f, wd: w * d})
	}

	clamped := raw
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 1 {
		clamped = 1
	}
	score := int(math.Round(100 * clamped))

	// Reasons: one sentence per flagged node with |W*D| >= 0.1, ordered by
	// (|W*D| desc, distance asc, contribution desc, address asc) — the
	// tie-break contract of spec.md §4.4, reused here for reason ordering.
	sort.SliceStable(ws, func(i, j int) bool {
		ai, aj := math.Abs(ws[i].wd), math.Abs(ws[j].wd)
		if ai != aj {
			return ai > aj
		}
		if ws[i].entity.Distance != ws[j].entity.Distance {
			return ws[i].entity.Distance < ws[j].entity.Distance
		}
		if ws[i].entity.Contribution != ws[j].entity.Contribution {
			return ws[i].entity.Contribution > ws[j].entity.Contribution
		}
		return ws[i].entity.Address < ws[j].entity.Address
	})

	reasons := make([]string, 0, len(ws)+2)
	for _, w := range ws {
		if math.Abs(w.wd) < 0.1 {
			continue
		}
		reasons = append(reasons, fmt.Sprintf(
			"%s at distance %d carries tag %s (weight %.2f, decayed %.3f)",
			w.entity.Address, w.entity.Distance, w.entity.Tag, Weight(w.entity.Tag), w.wd,
		))
	}

	reasons = append(reasons, fmt.Sprintf(
		"%d flagged entit%s, %d clean address%s analyzed",
		len(flagged), plural(len(flagged), "y", "ies"), unflaggedCount, plural(unflaggedCount, "", "es"),
	))

	if circularPaths > 0 {
		reasons = append(reasons, fmt.Sprintf("%d circular path%s detected during traversal", circularPaths, plural(circularPaths, "", "s")))
	}

	return Report{Score: score, Level: levelFor(score), Reasons: reasons}
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}
