package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	inner := NewTestAPI()
	scoped := NewScopedAPI("fandom", NewScopedAPI("client", inner))

	scoped.ReportBroken("query", "boom")
	scoped.ReportWarning("wikitext", KV{Key: "page", Value: "Trainer Lodge/Blue"})
	scoped.ReportCount("topics", 42)

	broken := inner.Reports("broken", "")
	require.Len(t, broken, 1)
	require.Equal(t, "client: fandom: query", broken[0].Id)
	require.Equal(t, []any{"boom"}, broken[0].Params)

	warnings := inner.Reports("warning", "wikitext")
	require.Len(t, warnings, 1)

	n, ok := inner.Count("topics")
	require.True(t, ok)
	require.Equal(t, int64(42), n)
}

func TestSlogAPIFormatParams(t *testing.T) {
	var out []any
	SlogAPI{}.formatParams(&out, []any{"a", KV{Key: "trainer", Value: "Blue"}, 3})
	require.Equal(t, []any{"params.0", "a", "trainer", "Blue", "params.2", 3}, out)
}
