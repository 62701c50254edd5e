package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/taskpipe/internal/manifest"
)

func writeManifest(testInstance *testing.T, contents string) string {
	testInstance.Helper()
	manifestPath := filepath.Join(testInstance.TempDir(), manifest.DefaultFileName)
	require.NoError(testInstance, os.WriteFile(manifestPath, []byte(contents), 0o644))
	return manifestPath
}

func TestLoadManifest(testInstance *testing.T) {
	testCases := []struct {
		name             string
		contents         string
		expectedManifest manifest.Manifest
		expectedError    string
	}{
		{
			name:             "name_and_version",
			contents:         `{"name": "storefront", "version": "1.4.0", "description": "Storefront assets"}`,
			expectedManifest: manifest.Manifest{Name: "storefront", Version: "1.4.0", Description: "Storefront assets"},
		},
		{
			name:             "name_only",
			contents:         `{"name": "storefront"}`,
			expectedManifest: manifest.Manifest{Name: "storefront"},
		},
		{
			name:          "missing_name",
			contents:      `{"version": "1.0.0"}`,
			expectedError: "does not declare a name",
		},
		{
			name:          "invalid_version",
			contents:      `{"name": "storefront", "version": "one"}`,
			expectedError: "invalid version",
		},
		{
			name:          "malformed_document",
			contents:      `{"name": `,
			expectedError: "unable to read manifest",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			manifestPath := writeManifest(testInstance, testCase.contents)
			loaded, loadError := manifest.Load(manifestPath)
			if len(testCase.expectedError) > 0 {
				require.Error(testInstance, loadError)
				require.Contains(testInstance, loadError.Error(), testCase.expectedError)
				return
			}
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedManifest, loaded)
		})
	}
}

func TestLoadManifestMissingFile(testInstance *testing.T) {
	_, loadError := manifest.Load(filepath.Join(testInstance.TempDir(), "absent.json"))
	require.Error(testInstance, loadError)
	require.Contains(testInstance, loadError.Error(), "does not exist")

	_, emptyPathError := manifest.Load("  ")
	require.ErrorIs(testInstance, emptyPathError, manifest.ErrManifestPathMissing)
}

func TestValidVersion(testInstance *testing.T) {
	require.True(testInstance, manifest.ValidVersion("1.2.3"))
	require.True(testInstance, manifest.ValidVersion("v1.2.3-rc.1"))
	require.False(testInstance, manifest.ValidVersion("latest"))
	require.False(testInstance, manifest.ValidVersion(""))
}
