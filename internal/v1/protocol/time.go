package protocol

import "time"

// Time is a wall-clock instant expressed as milliseconds since the Unix
// epoch. It is the only time representation that crosses the wire; clients
// stamp outbound messages with their own clock reading and the server never
// trusts it directly (see TimeMapping).
type Time int64

// TimeOf converts a wall instant to wire milliseconds.
func TimeOf(t time.Time) Time {
	return Time(t.UnixMilli())
}

// Wall converts wire milliseconds back to a wall instant. Negative values
// keep floor semantics: -1ms is 999_000_000ns before the epoch second.
func (t Time) Wall() time.Time {
	return time.UnixMilli(int64(t))
}

// Client interprets t as a reading of the sending client's clock.
func (t Time) Client() ClientTime {
	return ClientTime{t.Wall()}
}

// ServerTime is an instant on the server's clock. ClientTime is an instant
// claimed by a client and means nothing on the server axis until a
// TimeMapping converts it. The unexported fields keep the two axes from
// mixing at compile time.
type ServerTime struct {
	wall time.Time
}

// ServerNow reads the server clock.
func ServerNow() ServerTime {
	return ServerTime{time.Now()}
}

// ServerTimeAt wraps a wall instant already known to be server-observed.
func ServerTimeAt(t time.Time) ServerTime {
	return ServerTime{t}
}

// Add shifts the instant by d along the server axis.
func (s ServerTime) Add(d time.Duration) ServerTime {
	return ServerTime{s.wall.Add(d)}
}

// Sub returns the duration s-o.
func (s ServerTime) Sub(o ServerTime) time.Duration {
	return s.wall.Sub(o.wall)
}

// Wall exposes the underlying instant for formatting and logging.
func (s ServerTime) Wall() time.Time {
	return s.wall
}

// Wire converts the instant to wire milliseconds.
func (s ServerTime) Wire() Time {
	return TimeOf(s.wall)
}

// IsZero reports whether the instant was never set.
func (s ServerTime) IsZero() bool {
	return s.wall.IsZero()
}

// ClientTime is an instant on one client's clock. See ServerTime.
type ClientTime struct {
	wall time.Time
}

// ClientTimeAt wraps a wall instant claimed by a client.
func ClientTimeAt(t time.Time) ClientTime {
	return ClientTime{t}
}

// Add shifts the instant by d along the client's axis.
func (c ClientTime) Add(d time.Duration) ClientTime {
	return ClientTime{c.wall.Add(d)}
}

// Sub returns the duration c-o. Both instants must come from the same
// client for the result to mean anything.
func (c ClientTime) Sub(o ClientTime) time.Duration {
	return c.wall.Sub(o.wall)
}

// Wall exposes the underlying instant for formatting and logging.
func (c ClientTime) Wall() time.Time {
	return c.wall
}

// IsZero reports whether the instant was never set.
func (c ClientTime) IsZero() bool {
	return c.wall.IsZero()
}

// TimeMapping relates one client's clock to the server's. It is rebuilt
// wholesale from each ping/pong round trip: RequestedAt is when the ping
// left the server, ServerAt is when the pong arrived, and ClientAt is the
// client clock reading the pong carried. Network delay and clock skew both
// land in the ServerAt/ClientAt pair and cancel out of conversions.
type TimeMapping struct {
	RequestedAt ServerTime
	ServerAt    ServerTime
	ClientAt    ClientTime
}

// Convert maps an instant on the client's clock onto the server's clock:
// ServerAt + (c - ClientAt). Convert(ClientAt) is exactly ServerAt, and the
// mapping is linear: Convert(c+d) == Convert(c)+d.
func (m TimeMapping) Convert(c ClientTime) ServerTime {
	return m.ServerAt.Add(c.Sub(m.ClientAt))
}

// RTT is the server-observed round trip of the pair that built the mapping.
func (m TimeMapping) RTT() time.Duration {
	return m.ServerAt.Sub(m.RequestedAt)
}
