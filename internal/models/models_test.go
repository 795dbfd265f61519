package models

import (
	"testing"
	"time"
)

func fp(f float64) *float64 { return &f }

func TestCategory_EffectiveWeights(t *testing.T) {
	def := Weights{DefaultWeightEmotion, DefaultWeightOriginality, DefaultWeightProduction}

	tests := []struct {
		name string
		cat  Category
		want Weights
	}{
		{"unset", Category{}, def},
		{"partially set", Category{WeightEmotion: fp(50)}, def},
		{"configured", Category{WeightEmotion: fp(20), WeightOriginality: fp(60), WeightProduction: fp(20)}, Weights{20, 60, 20}},
		{"one zero weight", Category{WeightEmotion: fp(0), WeightOriginality: fp(1), WeightProduction: fp(1)}, Weights{0, 1, 1}},
		{"all zero", Category{WeightEmotion: fp(0), WeightOriginality: fp(0), WeightProduction: fp(0)}, def},
		{"negative", Category{WeightEmotion: fp(-1), WeightOriginality: fp(50), WeightProduction: fp(51)}, def},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cat.EffectiveWeights(); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestContestPeriod_VotingOpen(t *testing.T) {
	open := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	p := ContestPeriod{VotingOpenAt: open, VotingCloseAt: open.Add(time.Hour)}

	if p.VotingOpen(open.Add(-time.Nanosecond)) {
		t.Error("expected closed before open")
	}
	if !p.VotingOpen(open) || !p.VotingOpen(open.Add(time.Hour)) {
		t.Error("expected window ends to be inclusive")
	}
	if p.VotingOpen(open.Add(time.Hour + time.Nanosecond)) {
		t.Error("expected closed after close")
	}
}

func TestParseTier(t *testing.T) {
	for in, want := range map[string]Tier{"pro": TierPro, "elite": TierElite, "free": TierFree, "": TierFree, "gold": TierFree} {
		if got := ParseTier(in); got != want {
			t.Errorf("ParseTier(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRewardPool(t *testing.T) {
	var nilPool *RewardPool
	if nilPool.ThresholdMet() {
		t.Error("missing pool never meets threshold")
	}
	p := &RewardPool{Status: PoolCollecting, Top1Cents: 300, Top2Cents: 200, Top3Cents: 100}
	if p.ThresholdMet() {
		t.Error("collecting pool must not pay cash")
	}
	p.Status = PoolFunded
	if !p.ThresholdMet() {
		t.Error("funded pool pays cash")
	}
	if p.CentsForRank(1) != 300 || p.CentsForRank(3) != 100 || p.CentsForRank(4) != 0 {
		t.Error("unexpected cents per rank")
	}
}
