// Package lead holds the scoring rules applied to inbound consultation
// requests. Scores feed the grade and package recommendation returned to the
// marketing site and decide whether a lead_qualified conversion is enqueued.
package lead

// ScoreInput carries the form answers that feed the scoring rules.
type ScoreInput struct {
	MonthlyBudgetUSD int
	RunningAds       bool
	Timeline         string // asap, this_month, exploring
	HasWebsite       bool
	HasCompany       bool
}

// Score maps form answers to a 0-100 lead score. Budget dominates; urgency
// and an existing ads account indicate readiness to spend.
func Score(in ScoreInput) int {
	score := 0

	switch {
	case in.MonthlyBudgetUSD >= 10000:
		score += 50
	case in.MonthlyBudgetUSD >= 5000:
		score += 40
	case in.MonthlyBudgetUSD >= 2000:
		score += 30
	case in.MonthlyBudgetUSD >= 500:
		score += 15
	}

	if in.RunningAds {
		score += 20
	}

	switch in.Timeline {
	case "asap":
		score += 20
	case "this_month":
		score += 10
	}

	if in.HasWebsite {
		score += 5
	}
	if in.HasCompany {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

// Grade buckets a score into A-D.
func Grade(score int) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 60:
		return "B"
	case score >= 40:
		return "C"
	default:
		return "D"
	}
}

// RecommendedPackage picks the management tier pitched to the lead.
func RecommendedPackage(monthlyBudgetUSD int) string {
	switch {
	case monthlyBudgetUSD >= 10000:
		return "scale"
	case monthlyBudgetUSD >= 2000:
		return "growth"
	default:
		return "starter"
	}
}

// Qualified reports whether the lead clears the bar for a lead_qualified
// conversion event.
func Qualified(score int) bool {
	return score >= 60
}
