package resourcematcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadResourcesFromFileSkipsCommentsAndBlanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.txt")
	content := "# marketing\nhubspot/contacts\n\n  google_ads/campaigns  \n#xero/invoices\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	resources, err := readResourcesFromFile(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"hubspot/contacts", "google_ads/campaigns"}, resources)
}

func TestReadResourcesFromMissingFile(t *testing.T) {
	_, err := readResourcesFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
