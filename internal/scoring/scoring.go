// Package scoring computes a single comparable performance score per reel
// from its engagement and retention metrics. All functions are pure and
// deterministic; they perform no I/O.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"reelboard/internal/models"
)

// Weighting of intent signals in the engagement rate: a comment counts
// twice as much as a like, a save three times as much.
const (
	commentWeight = 2
	saveWeight    = 3

	watchTimeCapSeconds = 60
	neutralSkipScore    = 0.5
)

// Score computes the performance score of a reel, rounded to two decimals.
// Static content blends engagement rate with a logarithmic reach boost;
// video content additionally blends in a retention signal built from the
// average watch time and the skip rate.
func Score(reel *models.Reel) float64 {
	rate := engagementRate(reel)
	boost := reachBoost(reel)

	if !reel.IsVideo() {
		return round2(rate*70 + boost*30)
	}

	return round2(rate*55 + boost*25 + retentionSignal(reel)*20)
}

// engagementRate weights likes, comments and saves against views. The
// denominator floors at one so zero-view rows still score.
func engagementRate(reel *models.Reel) float64 {
	weighted := float64(reel.Likes + commentWeight*reel.Comments + saveWeight*reel.Saves)
	return weighted / math.Max(float64(reel.Views), 1)
}

// reachBoost is logarithmic so very large accounts cannot dominate purely
// on scale. Reach is never treated as less than the observed view count,
// and the +10 floor keeps the log defined at zero reach.
func reachBoost(reel *models.Reel) float64 {
	reach := float64(reel.Views)
	if reel.AccountsReached != nil && float64(*reel.AccountsReached) > reach {
		reach = float64(*reel.AccountsReached)
	}
	return math.Log10(reach + 10)
}

// retentionSignal blends watch time (capped at 60s of credit) with the
// skip rate; an unknown skip rate contributes a neutral 0.5.
func retentionSignal(reel *models.Reel) float64 {
	var watchTimeScore float64
	if reel.AverageWatchTime != nil {
		watchTimeScore = math.Min(*reel.AverageWatchTime, watchTimeCapSeconds) / watchTimeCapSeconds
	}

	skipScore := neutralSkipScore
	if reel.ThisReelSkipRate != nil {
		skipScore = 1 - (*reel.ThisReelSkipRate / 100)
	}

	return watchTimeScore*0.6 + skipScore*0.4
}

// ScoredReel pairs a reel with its computed score for ranking responses.
type ScoredReel struct {
	models.Reel
	Score float64 `json:"score"`
}

// Rank scores reels and sorts them by score descending. Ties keep their
// incoming order (stable sort); no explicit tie-break is applied.
func Rank(reels []models.Reel) []ScoredReel {
	scored := make([]ScoredReel, 0, len(reels))
	for _, reel := range reels {
		scored = append(scored, ScoredReel{Reel: reel, Score: Score(&reel)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored
}

// Recommendation surfaces the single highest-scoring reel with the
// strongest raw engagement signal as actionable text.
type Recommendation struct {
	Reel           ScoredReel `json:"reel"`
	Platform       string     `json:"platform"`
	TargetViews    int64      `json:"target_views"`
	StrongestStat  string     `json:"strongest_stat"`
	StrongestValue int64      `json:"strongest_value"`
	Advice         string     `json:"advice"`
}

// Recommend picks the top-ranked reel and names its strongest raw signal
// among likes, comments and saves. Ties prefer likes, then comments, then
// saves. Returns nil for an empty catalog.
func Recommend(reels []models.Reel) *Recommendation {
	ranked := Rank(reels)
	if len(ranked) == 0 {
		return nil
	}

	top := ranked[0]
	stat, value := strongestSignal(&top.Reel)

	return &Recommendation{
		Reel:           top,
		Platform:       top.Platform,
		TargetViews:    top.Views,
		StrongestStat:  stat,
		StrongestValue: value,
		Advice: fmt.Sprintf(
			"Post more content like %q on %s: it drew %d %s against %d views.",
			top.Title, top.Platform, value, stat, top.Views,
		),
	}
}

func strongestSignal(reel *models.Reel) (string, int64) {
	stat, value := "likes", reel.Likes
	if reel.Comments > value {
		stat, value = "comments", reel.Comments
	}
	if reel.Saves > value {
		stat, value = "saves", reel.Saves
	}
	return stat, value
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
