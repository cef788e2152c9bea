package logging

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veo-studio-server/modules/common/config"
)

func TestSetupWritesToRotatedFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "studio.log")
	closer := Setup(&config.Config{LogFile: path, LogMaxSizeMB: 1, LogMaxBackups: 1})

	log.Printf("hello from the test")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the test")
}

func TestSetupWithoutFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	closer := Setup(&config.Config{})
	assert.NoError(t, closer.Close())
}
