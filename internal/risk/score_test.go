package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_SafeWhenNoFlags(t *testing.T) {
	r := Score(nil, 2, 0, DefaultContributionK)
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, LevelSafe, r.Level)
}

func TestScore_MixerAtDistance1(t *testing.T) {
	// spec.md S2: W*D = 1.0*1.0, damped(log1p(1)/3) ~= 0.2310
	r := Score([]FlaggedEntity{{Address: "A", Tag: TagMixer, Distance: 1, Contribution: 1.0}}, 0, 0, DefaultContributionK)
	assert.InDelta(t, 23, r.Score, 1)
	assert.Equal(t, LevelLow, r.Level)
}

func TestScore_MixerAtDistance3(t *testing.T) {
	// spec.md S3: W*D = 1.0*0.25
	r := Score([]FlaggedEntity{{Address: "A", Tag: TagMixer, Distance: 3, Contribution: 1.0}}, 2, 0, DefaultContributionK)
	assert.InDelta(t, 6, r.Score, 1)
	assert.Equal(t, LevelSafe, r.Level)
}

func TestScore_ExchangeReducesButNeverNegative(t *testing.T) {
	withExchange := Score([]FlaggedEntity{
		{Address: "A", Tag: TagMixer, Distance: 2, Contribution: 1.0},
		{Address: "B", Tag: TagExchange, Distance: 1, Contribution: 1.0},
	}, 0, 0, DefaultContributionK)

	withoutExchange := Score([]FlaggedEntity{
		{Address: "A", Tag: TagMixer, Distance: 2, Contribution: 1.0},
	}, 0, 0, DefaultContributionK)

	assert.True(t, withExchange.Score <= withoutExchange.Score)
	assert.GreaterOrEqual(t, withExchange.Score, 0)
}

func TestScore_MonotoneInContributionAndWeightAndDistance(t *testing.T) {
	low := Score([]FlaggedEntity{{Address: "A", Tag: TagScam, Distance: 2, Contribution: 0.1}}, 0, 0, DefaultContributionK)
	high := Score([]FlaggedEntity{{Address: "A", Tag: TagScam, Distance: 2, Contribution: 5.0}}, 0, 0, DefaultContributionK)
	assert.LessOrEqual(t, low.Score, high.Score)

	near := Score([]FlaggedEntity{{Address: "A", Tag: TagScam, Distance: 1, Contribution: 1.0}}, 0, 0, DefaultContributionK)
	far := Score([]FlaggedEntity{{Address: "A", Tag: TagScam, Distance: 4, Contribution: 1.0}}, 0, 0, DefaultContributionK)
	assert.GreaterOrEqual(t, near.Score, far.Score)
}

func TestScore_CircularPathNoteAppears(t *testing.T) {
	r := Score(nil, 3, 1, DefaultContributionK)
	found := false
	for _, reason := range r.Reasons {
		if reason == "1 circular path detected during traversal" {
			found = true
		}
	}
	assert.True(t, found, "expected circular path note in reasons: %v", r.Reasons)
}
