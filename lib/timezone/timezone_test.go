package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDateKey(t *testing.T) {
	utc := time.Date(2024, time.August, 25, 17, 30, 0, 0, time.UTC)
	// 17:30 UTC is already the next day in Shanghai
	require.Equal(t, "20240826", DateKey(utc))

	local := time.Date(2024, time.August, 25, 8, 0, 0, 0, Location)
	require.Equal(t, "20240825", DateKey(local))
}
