package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStandardTimeIsUTC(t *testing.T) {
	now := NewStandardTime().Now()
	require.Equal(t, time.UTC, now.Location())
}

func TestFixedTime(t *testing.T) {
	loc := time.FixedZone("PDT", -7*60*60)
	at := time.Date(2024, time.August, 26, 17, 30, 0, 0, loc)

	clock := FixedTime{At: at}
	require.Equal(t, time.UTC, clock.Now().Location())
	require.True(t, clock.Now().Equal(at))
	require.Equal(t, 0, clock.Now().Hour())
}
