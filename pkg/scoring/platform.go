package scoring

import "github.com/pulseboardhq/pulseboard/pkg/ingest"

// PlatformMetrics is an entity's aggregated engagement for one
// platform over one time slice: qualifying mention count plus
// per-counter velocities. Only the fields the platform's formula reads
// need to be set.
type PlatformMetrics struct {
	Mentions        float64
	ViewVelocity    float64
	LikeVelocity    float64
	CommentVelocity float64
	UpvoteVelocity  float64
	RepostVelocity  float64
	ReplyVelocity   float64
	// AuthorityWeight scales channel/account credibility; zero means
	// unweighted (1.0).
	AuthorityWeight float64
}

// FormulaWeights are the per-platform counter weights.
type FormulaWeights struct {
	YouTubeViews    float64 `yaml:"youtube_views"`
	YouTubeLikes    float64 `yaml:"youtube_likes"`
	YouTubeComments float64 `yaml:"youtube_comments"`
	RedditUpvotes   float64 `yaml:"reddit_upvotes"`
	RedditComments  float64 `yaml:"reddit_comments"`
	XReposts        float64 `yaml:"x_reposts"`
	XLikes          float64 `yaml:"x_likes"`
	XReplies        float64 `yaml:"x_replies"`
}

// DefaultFormulaWeights returns the weights observed to work.
func DefaultFormulaWeights() FormulaWeights {
	return FormulaWeights{
		YouTubeViews: 0.4, YouTubeLikes: 0.3, YouTubeComments: 0.3,
		RedditUpvotes: 0.5, RedditComments: 0.5,
		XReposts: 0.4, XLikes: 0.3, XReplies: 0.3,
	}
}

// DefaultImportance returns the per-platform combination weights. X is
// disabled until its connector ships.
func DefaultImportance() map[ingest.Platform]float64 {
	return map[ingest.Platform]float64{
		ingest.PlatformYouTube: 1.0,
		ingest.PlatformReddit:  1.0,
		ingest.PlatformX:       0.0,
	}
}

// PlatformScore converts one platform's velocity metrics into a
// normalized 0-100 score. The weighted sum is unbounded in principle;
// 100 is a soft ceiling, not a statistically derived percentile.
func PlatformScore(platform ingest.Platform, m PlatformMetrics, w FormulaWeights) float64 {
	authority := m.AuthorityWeight
	if authority == 0 {
		authority = 1.0
	}

	var score float64
	switch platform {
	case ingest.PlatformYouTube:
		score = m.ViewVelocity*w.YouTubeViews +
			m.LikeVelocity*w.YouTubeLikes +
			m.CommentVelocity*w.YouTubeComments
		score *= authority
	case ingest.PlatformReddit:
		score = m.UpvoteVelocity*w.RedditUpvotes +
			m.CommentVelocity*w.RedditComments
	case ingest.PlatformX:
		score = m.RepostVelocity*w.XReposts +
			m.LikeVelocity*w.XLikes +
			m.ReplyVelocity*w.XReplies
		score *= authority
	}

	return clamp(score, 0, 100)
}

// Combine merges per-platform scores into one entity score (weighted
// mean by importance) plus the source breakdown (each platform's share
// of the raw score sum; all zero when the sum is zero). The mean's
// denominator is the full importance set, so a platform with no
// activity still weighs the score down instead of silently dropping
// out. The breakdown is presentation metadata, not a ranking input.
func Combine(scores map[ingest.Platform]float64, importance map[ingest.Platform]float64) (float64, map[ingest.Platform]float64) {
	breakdown := make(map[ingest.Platform]float64, len(scores))

	var total, weighted, totalWeight float64
	for p, s := range scores {
		total += s
		weighted += s * importance[p]
	}
	for _, w := range importance {
		totalWeight += w
	}

	for p, s := range scores {
		if total > 0 {
			breakdown[p] = s / total
		} else {
			breakdown[p] = 0
		}
	}

	if totalWeight == 0 {
		return 0, breakdown
	}
	return weighted / totalWeight, breakdown
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
