package matching

// Route specificity scores. Higher means a more specific match, so an exact
// literal route always beats a parameterised one, which beats a wildcard.
const (
	ScorePathExact    = 15
	ScorePathParams   = 12
	ScorePathWildcard = 10
)

// Per-criterion scores added on top of the route score.
const (
	ScoreMethod     = 10
	ScoreHeader     = 10
	ScoreQueryParam = 5
)
