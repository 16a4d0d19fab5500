package lead

import "testing"

func TestScore(t *testing.T) {
	cases := []struct {
		name string
		in   ScoreInput
		want int
	}{
		{"empty form", ScoreInput{}, 0},
		{"budget only low", ScoreInput{MonthlyBudgetUSD: 500}, 15},
		{"budget only mid", ScoreInput{MonthlyBudgetUSD: 2000}, 30},
		{"budget only high", ScoreInput{MonthlyBudgetUSD: 5000}, 40},
		{"budget only top", ScoreInput{MonthlyBudgetUSD: 10000}, 50},
		{"running ads", ScoreInput{RunningAds: true}, 20},
		{"asap timeline", ScoreInput{Timeline: "asap"}, 20},
		{"this month timeline", ScoreInput{Timeline: "this_month"}, 10},
		{"exploring timeline", ScoreInput{Timeline: "exploring"}, 0},
		{"website and company", ScoreInput{HasWebsite: true, HasCompany: true}, 10},
		{
			"everything caps at 100",
			ScoreInput{MonthlyBudgetUSD: 20000, RunningAds: true, Timeline: "asap", HasWebsite: true, HasCompany: true},
			100,
		},
		{
			"typical qualified lead",
			ScoreInput{MonthlyBudgetUSD: 3000, RunningAds: true, Timeline: "this_month", HasWebsite: true},
			65,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.in); got != tc.want {
				t.Fatalf("Score = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestGrade(t *testing.T) {
	cases := map[int]string{100: "A", 80: "A", 79: "B", 60: "B", 59: "C", 40: "C", 39: "D", 0: "D"}
	for score, want := range cases {
		if got := Grade(score); got != want {
			t.Fatalf("Grade(%d) = %q, want %q", score, got, want)
		}
	}
}

func TestRecommendedPackage(t *testing.T) {
	cases := map[int]string{15000: "scale", 10000: "scale", 9999: "growth", 2000: "growth", 1999: "starter", 0: "starter"}
	for budget, want := range cases {
		if got := RecommendedPackage(budget); got != want {
			t.Fatalf("RecommendedPackage(%d) = %q, want %q", budget, got, want)
		}
	}
}

func TestQualified(t *testing.T) {
	if Qualified(59) {
		t.Fatal("59 should not qualify")
	}
	if !Qualified(60) {
		t.Fatal("60 should qualify")
	}
}
