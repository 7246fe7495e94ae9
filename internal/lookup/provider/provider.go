// Package provider abstracts the external IP scoring service behind a
// Resolver capability so the orchestrator can be tested without network
// access.
package provider

import "context"

// Report is the provider payload consumed by the orchestrator. Fields the
// provider omits keep their zero values.
type Report struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	CountryCode  string `json:"country_code"`
	City         string `json:"city"`
	ISP          string `json:"ISP"`
	Host         string `json:"host"`
	VPN          bool   `json:"vpn"`
	Proxy        bool   `json:"proxy"`
	Organization string `json:"organization"`
	FraudScore   int    `json:"fraud_score"`
}

// Resolver fetches the raw intelligence report for one address.
type Resolver interface {
	FetchFromProvider(ctx context.Context, address string) (*Report, error)
}
