package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	ref := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)

	cases := map[string]string{
		"rfc3339":      "2024-10-10T10:10:10Z",
		"rfc3339 nano": "2024-10-10T10:10:10.000Z",
		"unix seconds": strconv.FormatInt(ref.Unix(), 10),
		"unix millis":  strconv.FormatInt(ref.UnixMilli(), 10),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := ParseTime(in)
			require.True(t, ok)
			assert.True(t, ref.Equal(got), "got %v", got)
		})
	}

	for _, bad := range []string{"", "yesterday", "-5", "0"} {
		_, ok := ParseTime(bad)
		assert.False(t, ok, bad)
	}
}
