package db

import (
	"testing"

	"github.com/boatfuel/fueltracker/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "boat",
		Password: "p@ss",
		DBName:   "fuel",
		UseSSL:   true,
	}

	assert.Equal(t, "postgres://boat:p%40ss@db:5433/fuel?sslmode=require", BuildURL(cfg))
}

func TestCandidates_PrimaryFirst(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:         "primary",
		Port:         5432,
		User:         "u",
		Password:     "p",
		DBName:       "d",
		FallbackURLs: []string{"postgres://u:p@replica:5432/d", "postgres://u:p@standby:5432/d"},
	}

	got := Candidates(cfg)

	require.Len(t, got, 3)
	assert.Contains(t, got[0], "primary")
	assert.Contains(t, got[1], "replica")
	assert.Contains(t, got[2], "standby")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://u:xxxxx@h:5432/d", Redact("postgres://u:secret@h:5432/d"))
	assert.NotContains(t, Redact("postgres://u:secret@h:5432/d?sslmode=disable"), "secret")
}
