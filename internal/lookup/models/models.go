package models

import "time"

// Unknown marks a field the external provider could not supply. A result
// whose canonical ISP name is Unknown is considered unresolved and will be
// re-fetched on next access.
const Unknown = "Unknown"

// LookupResult is the resolved intelligence for one address.
type LookupResult struct {
	Address          string    `json:"address"`
	ISPNameLocal     string    `json:"isp_name_local"`
	ISPNameCanonical string    `json:"isp_name_canonical"`
	IsVPN            bool      `json:"is_vpn"`
	VPNProvider      string    `json:"vpn_provider,omitempty"`
	Country          string    `json:"country"`
	City             string    `json:"city"`
	ThreatLevel      int       `json:"threat_level"`
	QueryCount       int64     `json:"query_count"`
	LastQueriedAt    time.Time `json:"last_queried_at"`
}

// Stale reports whether the result must bypass cache and store on next
// access and be re-resolved against the external provider.
func (r *LookupResult) Stale() bool {
	return r == nil || r.ISPNameCanonical == Unknown
}

// Placeholder builds a well-formed unresolved result for an address. It is
// cached in place of an absent factory result so repeated misses stay cheap
// while the staleness predicate still forces a re-resolution.
func Placeholder(address string, now time.Time) *LookupResult {
	return &LookupResult{
		Address:          address,
		ISPNameLocal:     Unknown,
		ISPNameCanonical: Unknown,
		Country:          Unknown,
		City:             Unknown,
		QueryCount:       1,
		LastQueriedAt:    now,
	}
}

// AggregateCounts is the cached record/log tally exposed to dashboards.
type AggregateCounts struct {
	RecordCount int64 `json:"record_count"`
	LogCount    int64 `json:"log_count"`
}

// LogEntry is one best-effort row of the lookup log.
type LogEntry struct {
	Address     string
	Country     string
	IsVPN       bool
	ThreatLevel int
	CreatedAt   time.Time
}
