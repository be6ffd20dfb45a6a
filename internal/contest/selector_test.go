package contest_test

import (
	"testing"

	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
)

func players(n int) []models.Participant {
	out := make([]models.Participant, n)
	for i := range out {
		out[i] = participant(i)
	}
	return out
}

func TestSelectorSubset(t *testing.T) {
	sel := contest.SeededSelector{}

	for n := 2; n <= contest.MaxCapacity; n++ {
		input := players(n)
		want := n * 8 / 10
		winners := sel.Select(input, want, int64(n))

		if len(winners) != want {
			t.Fatalf("n=%d: expected %d winners, got %d", n, want, len(winners))
		}

		valid := make(map[string]bool, n)
		for _, p := range input {
			valid[p.ID] = true
		}
		seen := make(map[string]bool, want)
		for _, w := range winners {
			if !valid[w.ID] {
				t.Errorf("n=%d: winner %s is not a participant", n, w.ID)
			}
			if seen[w.ID] {
				t.Errorf("n=%d: winner %s drawn twice", n, w.ID)
			}
			seen[w.ID] = true
		}
	}
}

func TestSelectorDeterministic(t *testing.T) {
	sel := contest.SeededSelector{}
	input := players(10)

	first := sel.Select(input, 8, 42)
	second := sel.Select(input, 8, 42)

	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("Draw for the same seed differs at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}

	for i, p := range input {
		if p.ID != participant(i).ID {
			t.Fatal("Select must not reorder its input")
		}
	}
}

func TestSelectorSeedsVary(t *testing.T) {
	sel := contest.SeededSelector{}
	input := players(10)

	losers := make(map[string]bool)
	for seed := int64(1); seed <= 20; seed++ {
		winners := sel.Select(input, 8, seed)
		in := make(map[string]bool, len(winners))
		for _, w := range winners {
			in[w.ID] = true
		}
		for _, p := range input {
			if !in[p.ID] {
				losers[p.ID] = true
			}
		}
	}

	if len(losers) <= 2 {
		t.Errorf("Different seeds should produce different draws, losers seen: %v", losers)
	}
}

func TestSelectorEdgeCases(t *testing.T) {
	sel := contest.SeededSelector{}

	if got := sel.Select(players(5), 0, 1); len(got) != 0 {
		t.Errorf("Zero winners should yield empty draw, got %d", len(got))
	}
	if got := sel.Select(nil, 3, 1); len(got) != 0 {
		t.Errorf("No participants should yield empty draw, got %d", len(got))
	}
	if got := sel.Select(players(3), 5, 1); len(got) != 3 {
		t.Errorf("Winner count should be capped at participants, got %d", len(got))
	}
}
