package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeWallFloorSemantics(t *testing.T) {
	assert.Equal(t, int64(1), Time(1000).Wall().Unix())
	assert.Equal(t, 500*int64(time.Millisecond), int64(Time(1500).Wall().Nanosecond()))

	// Negative millis floor toward minus infinity: -1ms sits inside second -1.
	neg := Time(-1).Wall()
	assert.Equal(t, int64(-1), neg.Unix())
	assert.Equal(t, 999*int64(time.Millisecond), int64(neg.Nanosecond()))
}

func TestTimeRoundTrip(t *testing.T) {
	for _, ms := range []int64{0, 1, -1, 1000, 999, -999, 1700000000123} {
		assert.Equal(t, Time(ms), TimeOf(Time(ms).Wall()), "ms=%d", ms)
	}
}

func TestTimeMappingIdentity(t *testing.T) {
	base := time.Unix(1000, 0)
	m := TimeMapping{
		RequestedAt: ServerTimeAt(base),
		ServerAt:    ServerTimeAt(base.Add(40 * time.Millisecond)),
		ClientAt:    ClientTimeAt(base.Add(3 * time.Hour)), // wildly skewed client clock
	}
	assert.Equal(t, m.ServerAt, m.Convert(m.ClientAt))
}

func TestTimeMappingLinearity(t *testing.T) {
	base := time.Unix(2000, 0)
	m := TimeMapping{
		RequestedAt: ServerTimeAt(base),
		ServerAt:    ServerTimeAt(base.Add(10 * time.Millisecond)),
		ClientAt:    ClientTimeAt(base.Add(-90 * time.Minute)),
	}
	for _, delta := range []time.Duration{time.Millisecond, time.Second, -3 * time.Second, 48 * time.Hour} {
		shifted := m.Convert(m.ClientAt.Add(delta))
		assert.Equal(t, delta, shifted.Sub(m.Convert(m.ClientAt)), "delta=%s", delta)
	}
}

func TestTimeMappingRTT(t *testing.T) {
	base := time.Unix(3000, 0)
	m := TimeMapping{
		RequestedAt: ServerTimeAt(base),
		ServerAt:    ServerTimeAt(base.Add(75 * time.Millisecond)),
		ClientAt:    ClientTimeAt(base),
	}
	assert.Equal(t, 75*time.Millisecond, m.RTT())
}

func TestAxisZeroValues(t *testing.T) {
	var s ServerTime
	var c ClientTime
	assert.True(t, s.IsZero())
	assert.True(t, c.IsZero())
	assert.False(t, ServerNow().IsZero())
}
