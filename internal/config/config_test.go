package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "https://www.holmesplace.co.il/", cfg.Crawler.BaseURL)
	require.True(t, cfg.Crawler.Headless)
	require.True(t, cfg.Crawler.DiscoverClubs)
	require.Equal(t, "data", cfg.Output.Dir)
	require.Equal(t, 256, cfg.WS.ObserverQueueSize)
	require.Equal(t, "local", cfg.Screenshots.Provider)
	require.False(t, cfg.DB.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  port: 9100
crawler:
  discover_clubs: false
  clubs:
    - name: "הולמס פלייס דיזנגוף"
      url: "https://www.holmesplace.co.il/club-page/dizengoff"
output:
  dir: "/tmp/holmes"
  stale_days: 3
screenshots:
  provider: "off"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
	require.False(t, cfg.Crawler.DiscoverClubs)
	require.Len(t, cfg.Crawler.Clubs, 1)
	require.Equal(t, 3, cfg.Output.StaleDays)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresClubsWithoutDiscovery(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Crawler.DiscoverClubs = false
	cfg.Crawler.Clubs = nil
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresDSNWhenDBEnabled(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.DB.Enabled = true
	cfg.DB.DSN = ""
	require.Error(t, cfg.Validate())
}

func TestValidateScreenshotProvider(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Screenshots.Provider = "s3"
	require.Error(t, cfg.Validate())

	cfg.Screenshots.Provider = "gcs"
	cfg.Screenshots.GCSBucket = ""
	require.Error(t, cfg.Validate())
}
