package feed

import (
	"math/rand"

	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
)

var logg = logger.New()

// HomeBias is the default per-draw probability of picking a followed
// author's post on the home feed.
const HomeBias = 0.6

// Compose orders posts with a weighted random draw biased toward authors
// the viewer follows. Each draw picks from the followed pool with
// probability bias, sampling without replacement; the realized mix varies
// per composition since the bias is per-draw, not a quota.
//
// The random source is an explicit parameter so compositions are
// reproducible under test. A nil viewer or nil following set means the
// viewer was never loaded and the input order is returned unchanged; a
// loaded account always carries at least an empty set (see
// models.Account.Summary), so a zero-follow viewer is still ranked.
func Compose(posts []models.Post, viewer *models.ViewerSummary, bias float64, rng *rand.Rand) []models.Post {
	remaining := dropCreatorless(posts)

	if viewer == nil || viewer.Following == nil {
		return remaining
	}

	followedSet := make(map[string]struct{}, len(viewer.Following))
	for _, id := range viewer.Following {
		followedSet[id] = struct{}{}
	}

	var followed, other []models.Post
	for _, p := range remaining {
		if _, ok := followedSet[p.CreatorID]; ok {
			followed = append(followed, p)
		} else {
			other = append(other, p)
		}
	}

	out := make([]models.Post, 0, len(remaining))
	for range remaining {
		switch {
		case rng.Float64() < bias && len(followed) > 0:
			out = append(out, takeRandom(&followed, rng))
		case len(other) > 0:
			out = append(out, takeRandom(&other, rng))
		default:
			out = append(out, takeRandom(&followed, rng))
		}
	}

	return out
}

// OnlyFollowed filters posts to those authored by someone the viewer
// follows. Used to pre-filter the following feed before a bias-1.0
// composition, which degenerates to a shuffle of this subset.
func OnlyFollowed(posts []models.Post, viewer *models.ViewerSummary) []models.Post {
	if viewer == nil || viewer.Following == nil {
		return nil
	}

	followedSet := make(map[string]struct{}, len(viewer.Following))
	for _, id := range viewer.Following {
		followedSet[id] = struct{}{}
	}

	var res []models.Post
	for _, p := range posts {
		if _, ok := followedSet[p.CreatorID]; ok {
			res = append(res, p)
		}
	}
	return res
}

// dropCreatorless filters out posts whose creator reference is missing.
// A missing creator is a data-quality problem, not a request failure.
func dropCreatorless(posts []models.Post) []models.Post {
	res := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if p.CreatorID == "" {
			logg.Warn("feed", "Dropping post without creator reference (post id anonymized)")
			continue
		}
		res = append(res, p)
	}
	return res
}

// takeRandom removes and returns a uniformly random element, swapping the
// victim to the end so removal stays O(1).
func takeRandom(pool *[]models.Post, rng *rand.Rand) models.Post {
	p := *pool
	i := rng.Intn(len(p))
	last := len(p) - 1
	p[i], p[last] = p[last], p[i]
	out := p[last]
	*pool = p[:last]
	return out
}
