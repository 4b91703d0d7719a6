package sync_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/spritesync/internal/ledger"
	"github.com/TheMichaelB/spritesync/internal/models"
	"github.com/TheMichaelB/spritesync/internal/services/sync"
	"github.com/TheMichaelB/spritesync/internal/storage"
	"github.com/TheMichaelB/spritesync/internal/testutil"
)

type mockedEngine struct {
	fs      afero.Fs
	scanner *testutil.MockScanner
	conv    *testutil.MockConverter
	store   *ledger.MockStore
	engine  *sync.Engine
}

func newMockedEngine(t *testing.T) *mockedEngine {
	t.Helper()

	logger := testutil.NewTestLogger()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0755))

	output, err := storage.NewLocalStore(fs, "/out", logger)
	require.NoError(t, err)

	m := &mockedEngine{
		fs:      fs,
		scanner: testutil.NewMockScanner(),
		conv:    testutil.NewMockConverter(),
		store:   ledger.NewMockStore(),
	}
	m.engine = sync.NewEngine(m.scanner, m.store, output, m.conv, &sync.EngineConfig{}, logger)
	return m
}

func TestEngineWithMockedCollaborators(t *testing.T) {
	m := newMockedEngine(t)
	require.NoError(t, afero.WriteFile(m.fs, "/out/walk.ase.png", []byte("old walk"), 0644))
	require.NoError(t, afero.WriteFile(m.fs, "/out/old.ase.png", []byte("old"), 0644))

	previous := models.NewLedger()
	previous.Set("old.ase", "h-old")
	previous.Set("walk.ase", "h-walk-1")
	m.store.Seed(previous)

	scan := testutil.ScanOf("/src", ".png",
		map[string]string{"walk.ase": "h-walk-2", "run.ase": "h-run"},
		"walk.ase", "old.ase")
	m.scanner.On("Scan", mock.Anything).Return(scan, nil).Once()

	m.conv.On("Check").Return(nil).Once()
	m.conv.On("Export", mock.Anything, "/src/walk.ase", "/out/walk.ase").Return(nil).Once()
	m.conv.On("Export", mock.Anything, "/src/run.ase", "/out/run.ase").
		Return(&models.ExportError{Path: "/src/run.ase", ExitCode: 1, Diagnostic: "bad layer"}).Once()

	report, err := m.engine.Run(context.Background(), sync.RunOptions{})
	require.NoError(t, err)

	m.scanner.AssertExpectations(t)
	m.conv.AssertExpectations(t)

	// Updated before added.
	require.Len(t, m.conv.Calls, 3)
	assert.Equal(t, "Check", m.conv.Calls[0].Method)
	assert.Equal(t, "/src/walk.ase", m.conv.Calls[1].Arguments.String(1))
	assert.Equal(t, "/src/run.ase", m.conv.Calls[2].Arguments.String(1))

	assert.Equal(t, []string{"old.ase"}, report.Deleted)
	assert.Equal(t, []string{"walk.ase"}, report.Exported)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "run.ase", report.Failures[0].Path)
	assert.Equal(t, models.ClassAdded, report.Failures[0].Class)

	exists, err := afero.Exists(m.fs, "/out/old.ase.png")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, 1, m.store.Saves())
	assert.Equal(t, map[string]string{
		"run.ase":  "h-run",
		"walk.ase": "h-walk-2",
	}, m.store.Current().Map())
}

func TestEngineScanErrorWithMocks(t *testing.T) {
	m := newMockedEngine(t)
	m.scanner.On("Scan", mock.Anything).
		Return(nil, fmt.Errorf("%w: /src: permission denied", models.ErrScan))

	_, err := m.engine.Run(context.Background(), sync.RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrScan)

	var syncErr *models.SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, "scan", syncErr.Phase)

	m.conv.AssertNotCalled(t, "Check")
	assert.Equal(t, 0, m.store.Saves())
}

func TestEnginePreviewWithMocks(t *testing.T) {
	m := newMockedEngine(t)

	scan := testutil.ScanOf("/src", ".png", map[string]string{"walk.ase": "h-walk"})
	m.scanner.On("Scan", mock.Anything).Return(scan, nil)

	report, err := m.engine.Run(context.Background(), sync.RunOptions{Preview: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"walk.ase"}, report.Plan.Added)
	m.conv.AssertNotCalled(t, "Check")
	m.conv.AssertNotCalled(t, "Export", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, m.store.Saves())
}
