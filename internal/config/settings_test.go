package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grimsteel/smarttag-go/internal/config"
)

func writeSettings(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smarttag.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadSettings(t *testing.T) {
	path := writeSettings(t, `
origin: https://api.example.com/
pollIntervalMinutes: 30
students:
  - externalId: "12345"
    routes: [12, 14]
  - externalId: "67890"
`)

	settings, err := config.LoadSettings(path)
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/", settings.Origin)
	require.Equal(t, 30, settings.PollIntervalMinutes)
	require.Len(t, settings.Students, 2)
	require.Equal(t, []int64{12, 14}, settings.Students[0].Routes)
}

func TestLoadSettingsMissingFileIsEmpty(t *testing.T) {
	settings, err := config.LoadSettings(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	require.Empty(t, settings.Students)
	require.Empty(t, settings.Origin)
}

func TestLoadSettingsRejectsBadOrigin(t *testing.T) {
	path := writeSettings(t, "origin: not a url\n")
	_, err := config.LoadSettings(path)
	require.Error(t, err)
}

func TestLoadSettingsRequiresExternalID(t *testing.T) {
	path := writeSettings(t, `
students:
  - routes: [12]
`)
	_, err := config.LoadSettings(path)
	require.Error(t, err)
}

func TestSelected(t *testing.T) {
	var all config.Settings
	tracked, routes := all.Selected("12345")
	require.True(t, tracked)
	require.Nil(t, routes)

	settings := config.Settings{Students: []config.StudentSelection{
		{ExternalID: "12345", Routes: []int64{12}},
	}}

	tracked, routes = settings.Selected("12345")
	require.True(t, tracked)
	require.Equal(t, []int64{12}, routes)

	tracked, _ = settings.Selected("99999")
	require.False(t, tracked)
}
