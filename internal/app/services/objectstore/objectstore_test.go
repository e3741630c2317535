package objectstore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	m.now = func() time.Time { return time.Unix(1000, 0) }
	ctx := context.Background()

	require.NoError(t, m.Upload(ctx, "invoices/u1/INV-1.html", strings.NewReader("<p>hi</p>"), 9, "text/html"))
	data, ct, err := m.Get("invoices/u1/INV-1.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(data))
	assert.Equal(t, "text/html", ct)

	signed, err := m.SignedURL(ctx, "invoices/u1/INV-1.html", 15*time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/invoices/u1/INV-1.html", u.Path)
	assert.Equal(t, "1900", u.Query().Get("expires"))

	require.NoError(t, m.Delete(ctx, "invoices/u1/INV-1.html"))
	_, err = m.SignedURL(ctx, "invoices/u1/INV-1.html", time.Minute)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		raw    string
		host   string
		secure bool
	}{
		{"", "ams3.digitaloceanspaces.com", true},
		{"https://fra1.digitaloceanspaces.com", "fra1.digitaloceanspaces.com", true},
		{"http://localhost:9000", "localhost:9000", false},
		{"sgp1.digitaloceanspaces.com/", "sgp1.digitaloceanspaces.com", true},
	}
	for _, tc := range tests {
		host, secure := splitEndpoint(tc.raw, "ams3")
		assert.Equal(t, tc.host, host, tc.raw)
		assert.Equal(t, tc.secure, secure, tc.raw)
	}
}

func TestSpacesPresignIsLocal(t *testing.T) {
	s, err := NewSpaces(SpacesConfig{
		KeyID:     "key",
		KeySecret: "secret",
		Bucket:    "seanotes",
		Region:    "nyc3",
		Endpoint:  "http://127.0.0.1:1",
	})
	require.NoError(t, err)

	signed, err := s.SignedURL(context.Background(), "invoices/u1/INV-1.html", 15*time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1", u.Host)
	assert.Contains(t, u.Path, "invoices/u1/INV-1.html")
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestNewSpacesRequiresCredentials(t *testing.T) {
	_, err := NewSpaces(SpacesConfig{Bucket: "b"})
	assert.Error(t, err)
}
