package changes

import (
	"encoding/json"
	"lodgemirror/internal/lodge"
	"lodgemirror/internal/testutil"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func record(name string, tiers map[lodge.Tier]lodge.Categories) lodge.Record {
	return lodge.Record{Name: name, Tiers: tiers}
}

func TestDiffScenario(t *testing.T) {
	old := lodge.Dataset{
		"A": record("A", map[lodge.Tier]lodge.Categories{
			lodge.TierInteresting: {"Pokemon": {"X"}},
		}),
	}
	current := lodge.Dataset{
		"A": record("A", map[lodge.Tier]lodge.Categories{
			lodge.TierInteresting: {"Pokemon": {"X", "Y"}},
		}),
	}

	expect := []Change{
		{Kind: KindModified, Trainer: "A", Details: []string{"+[Interesting/Pokemon]: Y"}},
	}
	if diff := cmp.Diff(expect, Diff(old, current)); diff != "" {
		t.Fatalf("unexpected changes (-want +got):\n%s", diff)
	}
}

func TestDiffOrdering(t *testing.T) {
	tiers := map[lodge.Tier]lodge.Categories{lodge.TierExciting: {"Food": {"Curry"}}}
	old := lodge.Dataset{
		"Zinnia":  record("Zinnia", tiers),
		"Blue":    record("Blue", tiers),
		"Acerola": record("Acerola", tiers),
		"Morty": record("Morty", map[lodge.Tier]lodge.Categories{
			lodge.TierExciting: {"Food": {"Curry"}},
		}),
		"Cynthia": record("Cynthia", map[lodge.Tier]lodge.Categories{
			lodge.TierExciting: {"Food": {"Curry"}},
		}),
	}
	current := lodge.Dataset{
		"Zinnia": record("Zinnia", tiers),
		"Morty": record("Morty", map[lodge.Tier]lodge.Categories{
			lodge.TierExciting: {"Food": {"Cake"}},
		}),
		"Cynthia": record("Cynthia", map[lodge.Tier]lodge.Categories{
			lodge.TierExciting: {"Food": {"Curry", "Macarons"}},
		}),
		"Wally": record("Wally", map[lodge.Tier]lodge.Categories{
			lodge.TierInteresting:   {"Pokemon": {"Gallade", "Altaria"}, "Health": {}},
			lodge.TierSuperExciting: {"Dreams": {"Champion"}},
		}),
		"Lana": record("Lana", map[lodge.Tier]lodge.Categories{}),
	}

	expect := []Change{
		{Kind: KindNew, Trainer: "Lana", Summary: "0 tiers, 0 topics"},
		{Kind: KindNew, Trainer: "Wally", Summary: "2 tiers, 3 topics"},
		{Kind: KindRemoved, Trainer: "Acerola"},
		{Kind: KindRemoved, Trainer: "Blue"},
		{Kind: KindModified, Trainer: "Cynthia", Details: []string{"+[Exciting/Food]: Macarons"}},
		{Kind: KindModified, Trainer: "Morty", Details: []string{
			"+[Exciting/Food]: Cake",
			"-[Exciting/Food]: Curry",
		}},
	}
	if diff := cmp.Diff(expect, Diff(old, current)); diff != "" {
		t.Fatalf("unexpected changes (-want +got):\n%s", diff)
	}
}

func TestDiffWholeTierAndCategory(t *testing.T) {
	old := lodge.Dataset{
		"A": record("A", map[lodge.Tier]lodge.Categories{
			lodge.TierInteresting: {"Pokemon": {"Y", "X"}, "Gone": {"G"}},
			lodge.TierExciting:    {"Food": {"Curry"}},
		}),
	}
	current := lodge.Dataset{
		"A": record("A", map[lodge.Tier]lodge.Categories{
			lodge.TierInteresting:   {"Pokemon": {"X", "Y"}, "Empty": {}},
			lodge.TierSuperExciting: {"Dreams": {"b", "a"}},
		}),
	}

	changes := Diff(old, current)
	require.Len(t, changes, 1)
	require.Equal(t, []string{
		"-[Exciting/Food]: Curry",
		"-[Interesting/Gone]: G",
		"+[Super Exciting/Dreams]: a, b",
	}, changes[0].Details)
}

func TestDiffReorderIsInvisible(t *testing.T) {
	old := lodge.Dataset{
		"A": record("A", map[lodge.Tier]lodge.Categories{
			lodge.TierInteresting: {"Pokemon": {"X", "Y", "Z"}},
		}),
	}
	current := lodge.Dataset{
		"A": record("A", map[lodge.Tier]lodge.Categories{
			lodge.TierInteresting: {"Pokemon": {"Z", "X", "Y"}},
		}),
	}
	require.Empty(t, Diff(old, current))
}

func TestDiffEmptyCategoryAppearingIsInvisible(t *testing.T) {
	old := lodge.Dataset{
		"A": record("A", map[lodge.Tier]lodge.Categories{
			lodge.TierInteresting: {"Pokemon": {"X"}},
		}),
	}
	current := lodge.Dataset{
		"A": record("A", map[lodge.Tier]lodge.Categories{
			lodge.TierInteresting: {"Pokemon": {"X"}, "Battle": {}},
		}),
	}
	require.Empty(t, Diff(old, current))
}

func TestDiffIdempotent(t *testing.T) {
	rndm := rand.New(rand.NewSource(1))
	for range 200 {
		dataset := testutil.RandomDataset(rndm, 8)
		require.Empty(t, Diff(dataset, dataset))
	}
}

func TestDiffSymmetry(t *testing.T) {
	rndm := rand.New(rand.NewSource(2))
	for range 200 {
		a := testutil.RandomDataset(rndm, 6)
		b := testutil.RandomDataset(rndm, 6)

		forward := map[Kind][]string{}
		for _, c := range Diff(a, b) {
			forward[c.Kind] = append(forward[c.Kind], c.Trainer)
		}
		backward := map[Kind][]string{}
		for _, c := range Diff(b, a) {
			backward[c.Kind] = append(backward[c.Kind], c.Trainer)
		}

		require.Equal(t, forward[KindNew], backward[KindRemoved])
		require.Equal(t, forward[KindRemoved], backward[KindNew])
		require.Equal(t, forward[KindModified], backward[KindModified])
	}
}

func TestChangeJSON(t *testing.T) {
	changes := []Change{
		{Kind: KindNew, Trainer: "Wally", Summary: "2 tiers, 3 topics"},
		{Kind: KindRemoved, Trainer: "Blue"},
		{Kind: KindModified, Trainer: "Morty", Details: []string{
			"+[Exciting/Food]: Cake",
			"-[Exciting/Food]: Curry",
		}},
	}

	out, err := json.Marshal(changes)
	require.NoError(t, err)
	require.JSONEq(t, `[
		{"type": "new_trainer", "trainer": "Wally", "details": "2 tiers, 3 topics"},
		{"type": "removed_trainer", "trainer": "Blue"},
		{"type": "modified_trainer", "trainer": "Morty", "details": "+[Exciting/Food]: Cake; -[Exciting/Food]: Curry"}
	]`, string(out))

	var decoded []Change
	require.NoError(t, json.Unmarshal(out, &decoded))
	if diff := cmp.Diff(changes, decoded); diff != "" {
		t.Fatalf("decoded changes differ (-want +got):\n%s", diff)
	}
}

func TestChangeString(t *testing.T) {
	require.Equal(t, "[REMOVED TRAINER] Blue", Change{Kind: KindRemoved, Trainer: "Blue"}.String())
	require.Equal(
		t,
		"[NEW TRAINER] Wally - 2 tiers, 3 topics",
		Change{Kind: KindNew, Trainer: "Wally", Summary: "2 tiers, 3 topics"}.String(),
	)
}
