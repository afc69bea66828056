package uploadthing

import "time"

// WithClock pins the time used for presigned URL expiry.
func WithClock(now func() time.Time) Option {
	return withClock(now)
}

// SetSeedFunc replaces the random file seed source.
func SetSeedFunc(c *Client, f func() string) {
	c.newSeed = f
}
