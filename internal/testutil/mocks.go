package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/TheMichaelB/spritesync/internal/models"
)

// MockScanner mocks the engine's scanner.
type MockScanner struct {
	mock.Mock
}

func NewMockScanner() *MockScanner {
	return &MockScanner{}
}

func (m *MockScanner) Scan(ctx context.Context) (*models.ScanResult, error) {
	args := m.Called(ctx)

	if result := args.Get(0); result != nil {
		return result.(*models.ScanResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockConverter mocks the external converter.
type MockConverter struct {
	mock.Mock
}

func NewMockConverter() *MockConverter {
	return &MockConverter{}
}

func (m *MockConverter) Check() error {
	return m.Called().Error(0)
}

func (m *MockConverter) Export(ctx context.Context, source, target string) error {
	return m.Called(ctx, source, target).Error(0)
}

// ScanOf builds a scan result from source fingerprints and exported logical
// paths. Sources live under sourceRoot with their logical names; artifacts
// are the logical path plus suffix.
func ScanOf(sourceRoot, suffix string, sources map[string]string, outputs ...string) *models.ScanResult {
	result := models.NewScanResult()

	for _, path := range SortedKeys(sources) {
		result.Sources = append(result.Sources, path)
		result.Hashes[path] = sources[path]
		result.Files[path] = sourceRoot + "/" + path
	}
	for _, path := range outputs {
		result.Outputs[path] = models.OutputEntry{Path: path, Artifact: path + suffix}
	}

	return result
}
