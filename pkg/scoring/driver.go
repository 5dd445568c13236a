package scoring

import "github.com/pulseboardhq/pulseboard/pkg/ingest"

// DriverLabel is a short heuristic explanation of why an entity's
// score is moving.
type DriverLabel string

const (
	DriverClipSpike           DriverLabel = "clip_spike"
	DriverDunkThread          DriverLabel = "dunk_thread"
	DriverRedditConsolidation DriverLabel = "reddit_consolidation"
	DriverCrossPlatformPickup DriverLabel = "cross_platform_pickup"
	DriverComeback            DriverLabel = "comeback"
	DriverHeatingUp           DriverLabel = "heating_up"
	DriverSlowBurn            DriverLabel = "slow_burn"
)

// Signals is everything the driver rules may inspect for one entity.
type Signals struct {
	Sources       map[ingest.Platform]float64
	Momentum      float64
	MicroMomentum float64
	MentionCount  int
	// PreviousRank is the entity's rank in the prior snapshot for the
	// same window; 0 means it had none.
	PreviousRank int
	CurrentRank  int
	// ShortestWindow / LongestWindow locate the current window among
	// the configured set.
	ShortestWindow bool
	LongestWindow  bool
}

// Thresholds are the editorial knobs behind the driver rules. They
// encode judgment, not statistics, and are configuration so tuning
// never touches the rule chain itself.
type Thresholds struct {
	SpikeShare            float64 `yaml:"spike_share"`
	SpikeMomentum         float64 `yaml:"spike_momentum"`
	DunkShare             float64 `yaml:"dunk_share"`
	DunkMomentum          float64 `yaml:"dunk_momentum"`
	ConsolidationShare    float64 `yaml:"consolidation_share"`
	ConsolidationMentions int     `yaml:"consolidation_mentions"`
	PickupMaxShare        float64 `yaml:"pickup_max_share"`
	PickupMomentum        float64 `yaml:"pickup_momentum"`
	ComebackPriorRank     int     `yaml:"comeback_prior_rank"`
	ComebackCurrentRank   int     `yaml:"comeback_current_rank"`
	HeatingMicroMomentum  float64 `yaml:"heating_micro_momentum"`
	HeatingMomentum       float64 `yaml:"heating_momentum"`
	SlowBurnMaxMomentum   float64 `yaml:"slow_burn_max_momentum"`
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SpikeShare:            0.6,
		SpikeMomentum:         50,
		DunkShare:             0.6,
		DunkMomentum:          40,
		ConsolidationShare:    0.6,
		ConsolidationMentions: 10,
		PickupMaxShare:        0.5,
		PickupMomentum:        30,
		ComebackPriorRank:     20,
		ComebackCurrentRank:   10,
		HeatingMicroMomentum:  50,
		HeatingMomentum:       20,
		SlowBurnMaxMomentum:   20,
	}
}

// Rule is one (predicate, label) pair in the driver chain.
type Rule struct {
	Label DriverLabel
	Match func(Signals) bool
}

// Rules builds the prioritized driver chain. Order matters and is
// evaluated top to bottom, first match wins; a reordering changes the
// product's editorial voice, so keep it in one place.
func Rules(t Thresholds) []Rule {
	return []Rule{
		{DriverClipSpike, func(s Signals) bool {
			return s.Sources[ingest.PlatformYouTube] > t.SpikeShare &&
				s.Momentum > t.SpikeMomentum && s.ShortestWindow
		}},
		{DriverDunkThread, func(s Signals) bool {
			return s.Sources[ingest.PlatformX] > t.DunkShare &&
				s.Momentum > t.DunkMomentum
		}},
		{DriverRedditConsolidation, func(s Signals) bool {
			return s.Sources[ingest.PlatformReddit] > t.ConsolidationShare &&
				s.MentionCount > t.ConsolidationMentions
		}},
		{DriverCrossPlatformPickup, func(s Signals) bool {
			return maxShare(s.Sources) < t.PickupMaxShare &&
				s.Momentum > t.PickupMomentum
		}},
		{DriverComeback, func(s Signals) bool {
			return (s.PreviousRank == 0 || s.PreviousRank > t.ComebackPriorRank) &&
				s.CurrentRank <= t.ComebackCurrentRank
		}},
		{DriverHeatingUp, func(s Signals) bool {
			return s.MicroMomentum > t.HeatingMicroMomentum &&
				s.Momentum > t.HeatingMomentum
		}},
		{DriverSlowBurn, func(s Signals) bool {
			return s.LongestWindow && s.Momentum > 0 &&
				s.Momentum < t.SlowBurnMaxMomentum
		}},
	}
}

// Classify walks the rule chain and returns the first matching label,
// or nil when nothing fires.
func Classify(rules []Rule, s Signals) *DriverLabel {
	for _, r := range rules {
		if r.Match(s) {
			label := r.Label
			return &label
		}
	}
	return nil
}

func maxShare(sources map[ingest.Platform]float64) float64 {
	max := 0.0
	for _, v := range sources {
		if v > max {
			max = v
		}
	}
	return max
}
