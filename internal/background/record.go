package background

import "time"

// Record is the persisted background cache entry. Timestamp is epoch
// milliseconds of the write.
type Record struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
}

// Valid reports whether rec is usable at now under the given schema version
// and TTL. A record exactly ttl old is expired. A timestamp in the future is
// accepted. The cutoff is computed from now rather than subtracting the stored
// timestamp, so an absurdly old value cannot wrap around into a fresh age.
func Valid(rec *Record, now time.Time, version string, ttl time.Duration) bool {
	if rec == nil {
		return false
	}
	if rec.Version != version {
		return false
	}
	cutoff := now.UnixMilli() - ttl.Milliseconds()
	return rec.Timestamp > cutoff
}
