package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTryConvert(t *testing.T) {
	assert.Equal(t, int64(42), TryConvert[int64]("42", -1))
	assert.Equal(t, int64(-1), TryConvert[int64]("forty-two", -1))
	assert.Equal(t, int64(-1), TryConvert[int64](nil, -1))
	assert.Equal(t, 7, TryConvert(7, 0))
	assert.Equal(t, uint8(10), TryConvert[uint8](10.0, 0))
	assert.Equal(t, "123", TryConvert(123, ""))
	assert.True(t, TryConvert("true", false))
	assert.Equal(t, 1.5, TryConvert("1.5", 0.0))
	assert.Equal(t, 3*time.Second, TryConvert("3s", time.Duration(0)))
	assert.Equal(t, []string{"a", "b"}, TryConvert("a b", []string(nil)))

	type custom struct{ X int }
	assert.Equal(t, custom{1}, TryConvert[custom]("x", custom{1}))
}

func TestUnixTime(t *testing.T) {
	ts := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(1609459200), ToUnixTime(ts, false))
	assert.Equal(t, int64(1609459200000), ToUnixTime(ts, true))
	assert.Equal(t, ts, FromUnixMillis(1609459200000))

	before := time.Date(1969, 12, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, int64(-1), ToUnixTime(before, false))

	local := ts.In(time.FixedZone("KST", 9*3600))
	assert.Equal(t, int64(1609459200000), ToUnixTime(local, true))
}
