package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "professorsycamore", NormalizeName("  Professor Sycamore\n"))
	require.Equal(t, "ballguy", NormalizeName("Ball\tGuy"))
}

func TestFindLookalikes(t *testing.T) {
	known := []string{"Professor Sycamore", "Blue", "Grimsley"}

	found := FindLookalikes(
		[]string{"professor sycamore", "Profesor Sycamore", "Grimsly", "Marnie"},
		known,
		0.9,
	)

	require.Len(t, found, 2)
	require.Equal(t, "Profesor Sycamore", found[0].Name)
	require.Equal(t, "Professor Sycamore", found[0].Known)
	require.Equal(t, "Grimsly", found[1].Name)
	require.Equal(t, "Grimsley", found[1].Known)
}

func TestFindLookalikesEmpty(t *testing.T) {
	require.Nil(t, FindLookalikes(nil, []string{"Blue"}, 0.9))
	require.Nil(t, FindLookalikes([]string{"Blue"}, nil, 0.9))
}
