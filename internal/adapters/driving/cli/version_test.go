package cli

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVersion(t *testing.T, v string) {
	t.Helper()
	old := version
	version = v
	t.Cleanup(func() { version = old })
}

func TestVersionCmd(t *testing.T) {
	withVersion(t, "1.4.0")

	out := run(t, "version")
	assert.Contains(t, out, "annotext 1.4.0 ("+runtime.Version())
}

func TestVersionCmd_JSON(t *testing.T) {
	withVersion(t, "dev")

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(run(t, "version", "--json")), &info))
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, runtime.GOOS, info.OS)
}

func TestVersionCmd_RejectsArgs(t *testing.T) {
	_, err := execute(t, "", "version", "extra")
	assert.Error(t, err)
}
