// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package geoip resolves a best-effort approximate location for a client
// IP through an ordered chain of external lookup providers with a fixed
// default fallback. Resolution never fails and never blocks beyond the
// summed per-provider timeouts.
package geoip

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/plenavideo/vigia/internal/models"
)

// Provider is one external geolocation lookup service. Implementations
// treat any non-2xx response or malformed body as failure so the
// resolver advances to the next provider in the chain.
type Provider interface {
	// Lookup returns the location for the given IP address.
	Lookup(ctx context.Context, ipAddress string) (*models.LocationInfo, error)

	// Name returns the provider name for logging and metrics.
	Name() string

	// IsAvailable reports whether the provider is configured and usable.
	IsAvailable() bool
}

// ========================================
// ip-api.com Provider (primary, full lookup)
// ========================================

// IPAPIProvider implements Provider using the free ip-api.com service.
// Rate limit: 45 requests per minute on the free tier, enforced locally
// so exceeding traffic fails fast instead of burning the quota.
type IPAPIProvider struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// ipAPIResponse is the subset of the ip-api.com JSON payload we consume.
type ipAPIResponse struct {
	Status      string `json:"status"`      // "success" or "fail"
	Message     string `json:"message"`     // error detail when status is "fail"
	CountryCode string `json:"countryCode"` // ISO 3166-1 alpha-2
	RegionName  string `json:"regionName"`
	City        string `json:"city"`
}

// NewIPAPIProvider creates the primary provider. baseURL is typically
// http://ip-api.com/json; timeout bounds each lookup call.
func NewIPAPIProvider(baseURL string, timeout time.Duration) *IPAPIProvider {
	return &IPAPIProvider{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/45), 45),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name.
func (p *IPAPIProvider) Name() string {
	return "ip-api.com"
}

// IsAvailable returns true; ip-api.com requires no API key.
func (p *IPAPIProvider) IsAvailable() bool {
	return true
}

// Lookup queries ip-api.com for region, city and country.
func (p *IPAPIProvider) Lookup(ctx context.Context, ipAddress string) (*models.LocationInfo, error) {
	if !p.limiter.Allow() {
		return nil, fmt.Errorf("rate limit exceeded for ip-api.com (45 req/min)")
	}
	if net.ParseIP(ipAddress) == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	url := fmt.Sprintf("%s/%s?fields=status,message,countryCode,regionName,city", p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip-api.com: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api.com returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api.com response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("ip-api.com lookup failed: %s", result.Message)
	}
	if result.CountryCode == "" {
		return nil, fmt.Errorf("ip-api.com returned empty country for %s", ipAddress)
	}

	return &models.LocationInfo{
		Region:  result.RegionName,
		City:    result.City,
		Country: result.CountryCode,
	}, nil
}

// ========================================
// country.is Provider (fallback, country-only)
// ========================================

// CountryProvider implements Provider using the free country.is service,
// which returns only a country code. The code is mapped to that country's
// default region and city; an unmapped country counts as a failure so the
// chain can fall through to the hard-coded default.
type CountryProvider struct {
	client  *http.Client
	baseURL string
}

type countryResponse struct {
	IP      string `json:"ip"`
	Country string `json:"country"`
}

// countryDefaults maps ISO country codes to the default region/city used
// when only the country is known.
var countryDefaults = map[string]models.LocationInfo{
	"BR": {Region: "São Paulo", City: "São Paulo", Country: "BR"},
	"AR": {Region: "Buenos Aires", City: "Buenos Aires", Country: "AR"},
	"CL": {Region: "Región Metropolitana", City: "Santiago", Country: "CL"},
	"CO": {Region: "Bogotá", City: "Bogotá", Country: "CO"},
	"MX": {Region: "Ciudad de México", City: "Ciudad de México", Country: "MX"},
	"PT": {Region: "Lisboa", City: "Lisboa", Country: "PT"},
	"US": {Region: "New York", City: "New York", Country: "US"},
	"ES": {Region: "Madrid", City: "Madrid", Country: "ES"},
	"FR": {Region: "Île-de-France", City: "Paris", Country: "FR"},
	"DE": {Region: "Berlin", City: "Berlin", Country: "DE"},
	"GB": {Region: "England", City: "London", Country: "GB"},
	"JP": {Region: "Tokyo", City: "Tokyo", Country: "JP"},
}

// NewCountryProvider creates the country-only fallback provider.
func NewCountryProvider(baseURL string, timeout time.Duration) *CountryProvider {
	return &CountryProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name.
func (p *CountryProvider) Name() string {
	return "country.is"
}

// IsAvailable returns true; country.is requires no API key.
func (p *CountryProvider) IsAvailable() bool {
	return true
}

// Lookup queries country.is and maps the country code to its default
// region and city.
func (p *CountryProvider) Lookup(ctx context.Context, ipAddress string) (*models.LocationInfo, error) {
	if net.ParseIP(ipAddress) == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	url := fmt.Sprintf("%s/%s", p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query country.is: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("country.is returned status %d", resp.StatusCode)
	}

	var result countryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode country.is response: %w", err)
	}

	if result.Country == "" {
		return nil, fmt.Errorf("country.is returned empty country for %s", ipAddress)
	}

	loc, ok := countryDefaults[strings.ToUpper(result.Country)]
	if !ok {
		return nil, fmt.Errorf("no default region mapping for country %q", result.Country)
	}

	return &loc, nil
}

// IsPrivateIP reports whether the IP address is in a private/local range.
// Private IPs cannot be geolocated and short-circuit to the default.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

// NormalizeIP strips a port from an address if one is present, handling
// both 192.168.1.1:443 and [::1]:443 forms.
func NormalizeIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
