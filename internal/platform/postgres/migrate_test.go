package postgres

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(MigrationsFS(), "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())

		body, err := fs.ReadFile(MigrationsFS(), "migrations/"+e.Name())
		require.NoError(t, err)
		text := string(body)
		assert.Contains(t, text, "-- +goose Up", e.Name())
		assert.Contains(t, text, "-- +goose Down", e.Name())
	}

	assert.Equal(t, []string{
		"00001_create_notebooks_and_pages.sql",
		"00002_create_scan_jobs.sql",
		"00003_create_routed_content.sql",
		"00004_create_tasks.sql",
	}, names)
}

// The constraint names mapped in errors.go must exist in the schema.
func TestMappedConstraintsExistInSchema(t *testing.T) {
	var schema strings.Builder
	entries, err := fs.ReadDir(MigrationsFS(), "migrations")
	require.NoError(t, err)
	for _, e := range entries {
		body, err := fs.ReadFile(MigrationsFS(), "migrations/"+e.Name())
		require.NoError(t, err)
		schema.Write(body)
	}

	for _, name := range []string{constraintPageIndex, constraintPageToken, constraintOneUnresolvedJob} {
		assert.Contains(t, schema.String(), name)
	}
}

func TestMigrate_UnsupportedCommand(t *testing.T) {
	err := Migrate(context.Background(), nil, "drop-everything", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported migration command")
}
