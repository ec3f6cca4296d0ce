package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubMigrator struct {
	upErr      error
	downErr    error
	version    uint
	dirty      bool
	versionErr error
	calls      []string
}

func (m *stubMigrator) Up() error {
	m.calls = append(m.calls, "up")
	return m.upErr
}

func (m *stubMigrator) Down() error {
	m.calls = append(m.calls, "down")
	return m.downErr
}

func (m *stubMigrator) Version() (uint, bool, error) {
	return m.version, m.dirty, m.versionErr
}

func TestParseCommand(t *testing.T) {
	command, err := parseCommand(nil)
	require.NoError(t, err)
	assert.Equal(t, "up", command)

	command, err = parseCommand([]string{" Down "})
	require.NoError(t, err)
	assert.Equal(t, "down", command)

	_, err = parseCommand([]string{"force"})
	assert.Error(t, err)
}

func TestRunTreatsNoChangeAsSuccess(t *testing.T) {
	m := &stubMigrator{upErr: migrate.ErrNoChange}
	require.NoError(t, run(m, "up"))

	m = &stubMigrator{downErr: errors.New("dirty database version 2")}
	assert.EqualError(t, run(m, "down"), "dirty database version 2")

	m = &stubMigrator{}
	require.NoError(t, run(m, "version"))
	assert.Empty(t, m.calls)
}

func TestLogVersionReportsDirtyState(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	logVersion(log, &stubMigrator{version: 3})
	logVersion(log, &stubMigrator{version: 4, dirty: true})
	logVersion(log, &stubMigrator{versionErr: migrate.ErrNilVersion})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "schema version", entries[0].Message)
	assert.Equal(t, uint64(3), entries[0].ContextMap()["version"])
	assert.Equal(t, "schema is dirty", entries[1].Message)
	assert.Equal(t, "no migrations applied", entries[2].Message)
}

func TestFindMigrationsDir(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "cmd", "migrate")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	_, err := findMigrationsDir([]string{nested})
	assert.Error(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(root, migrationsDirName), 0o755))
	found, err := findMigrationsDir([]string{nested, root})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, migrationsDirName), found)
}
