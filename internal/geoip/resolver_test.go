// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plenavideo/vigia/internal/models"
)

const testTimeout = 2 * time.Second

func TestIPAPIProviderSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "200.150.10.1")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"BR","regionName":"Bahia","city":"Salvador"}`))
	}))
	defer srv.Close()

	p := NewIPAPIProvider(srv.URL, testTimeout)
	loc, err := p.Lookup(context.Background(), "200.150.10.1")

	require.NoError(t, err)
	assert.Equal(t, &models.LocationInfo{Region: "Bahia", City: "Salvador", Country: "BR"}, loc)
}

func TestIPAPIProviderFailStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
	}))
	defer srv.Close()

	p := NewIPAPIProvider(srv.URL, testTimeout)
	_, err := p.Lookup(context.Background(), "200.150.10.1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved range")
}

func TestIPAPIProviderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewIPAPIProvider(srv.URL, testTimeout)
	_, err := p.Lookup(context.Background(), "200.150.10.1")

	assert.Error(t, err)
}

func TestIPAPIProviderMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	p := NewIPAPIProvider(srv.URL, testTimeout)
	_, err := p.Lookup(context.Background(), "200.150.10.1")

	assert.Error(t, err)
}

func TestIPAPIProviderInvalidIP(t *testing.T) {
	p := NewIPAPIProvider("http://example.invalid", testTimeout)
	_, err := p.Lookup(context.Background(), "not-an-ip")
	assert.Error(t, err)
}

func TestCountryProviderMapsToDefaultCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"200.150.10.1","country":"BR"}`))
	}))
	defer srv.Close()

	p := NewCountryProvider(srv.URL, testTimeout)
	loc, err := p.Lookup(context.Background(), "200.150.10.1")

	require.NoError(t, err)
	assert.Equal(t, &models.LocationInfo{Region: "São Paulo", City: "São Paulo", Country: "BR"}, loc)
}

func TestCountryProviderUnmappedCountryFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"1.2.3.4","country":"ZZ"}`))
	}))
	defer srv.Close()

	p := NewCountryProvider(srv.URL, testTimeout)
	_, err := p.Lookup(context.Background(), "1.2.3.4")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no default region mapping")
}

func TestResolverFallsThroughChain(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	country := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"200.150.10.1","country":"PT"}`))
	}))
	defer country.Close()

	r := NewResolver(
		NewIPAPIProvider(failing.URL, testTimeout),
		NewCountryProvider(country.URL, testTimeout),
	)

	loc := r.Resolve(context.Background(), "200.150.10.1")
	assert.Equal(t, models.LocationInfo{Region: "Lisboa", City: "Lisboa", Country: "PT"}, loc)
}

func TestResolverReturnsDefaultWhenAllProvidersFail(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	r := NewResolver(
		NewIPAPIProvider(failing.URL, testTimeout),
		NewCountryProvider(failing.URL, testTimeout),
	)

	loc := r.Resolve(context.Background(), "200.150.10.1")
	assert.Equal(t, models.DefaultLocation(), loc)
}

func TestResolverShortCircuitsPrivateIPs(t *testing.T) {
	// No providers at all: a private IP must still resolve to the default.
	r := NewResolver()

	for _, ip := range []string{"127.0.0.1", "10.0.0.8", "192.168.1.50", "::1"} {
		assert.Equal(t, models.DefaultLocation(), r.Resolve(context.Background(), ip), ip)
	}
}

func TestBreakerProviderPassesThroughSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"BR","regionName":"Ceará","city":"Fortaleza"}`))
	}))
	defer srv.Close()

	p := WithBreaker(NewIPAPIProvider(srv.URL, testTimeout))
	loc, err := p.Lookup(context.Background(), "200.150.10.1")

	require.NoError(t, err)
	assert.Equal(t, "Ceará", loc.Region)
	assert.Equal(t, "ip-api.com", p.Name())
	assert.True(t, p.IsAvailable())
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := WithBreaker(NewIPAPIProvider(srv.URL, testTimeout))

	for i := 0; i < 10; i++ {
		_, err := p.Lookup(context.Background(), "200.150.10.1")
		require.Error(t, err)
	}

	// Once open, lookups are rejected without reaching the server.
	_, err := p.Lookup(context.Background(), "200.150.10.1")
	assert.Error(t, err)
}

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.1.1:443", "192.168.1.1"},
		{"192.168.1.1", "192.168.1.1"},
		{"[::1]:8080", "::1"},
		{"::1", "::1"},
		{"2001:db8::1", "2001:db8::1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeIP(tt.in), tt.in)
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, IsPrivateIP("10.1.2.3"))
	assert.True(t, IsPrivateIP("172.16.0.1"))
	assert.True(t, IsPrivateIP("192.168.0.1"))
	assert.True(t, IsPrivateIP("127.0.0.1"))
	assert.True(t, IsPrivateIP("::1"))
	assert.False(t, IsPrivateIP("200.150.10.1"))
	assert.False(t, IsPrivateIP("not-an-ip"))
}
