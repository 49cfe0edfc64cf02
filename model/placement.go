package model

// CandidateSite is a possible location for a new access point or
// extender. Feasibility (near power, not inside a wall) is decided by
// an external collaborator; the optimizer skips infeasible sites
// entirely rather than penalising them.
type CandidateSite struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Feasible bool     `json:"feasible"`
}

// PlacementRecommendation is one chosen site together with the gain it
// delivered over the worst-covered cell at selection time. Derived
// output; never persisted by the core.
type PlacementRecommendation struct {
	Site Site `json:"site"`

	// ExpectedImprovement is the rise of the minimum gap-cell
	// strength (dB) produced by adding this site. Always >= 0.
	ExpectedImprovement float64 `json:"expectedImprovement"`
}

// Site is the subset of CandidateSite that survives into a
// recommendation.
type Site struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}
