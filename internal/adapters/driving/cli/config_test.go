package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShow(t *testing.T) {
	setupTestServices(t)

	out := run(t, "config", "show")

	assert.Contains(t, out, "search.backend")
	assert.Contains(t, out, "sqlite")
	assert.Contains(t, out, "ANNOTEXT_SYNC_MAX_ATTEMPTS")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestConfigSet(t *testing.T) {
	setupTestServices(t)

	out := run(t, "config", "set", "sync.max_attempts", "5")
	assert.Contains(t, out, "Set sync.max_attempts")

	out = run(t, "config", "show", "--json")
	var values map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &values))
	assert.Equal(t, "5", values["sync.max_attempts"])
}

func TestConfigSet_Rejects(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "", "config", "set", "no.such.key", "1")
	require.Error(t, err)

	_, err = execute(t, "", "config", "set", "sync.max_attempts", "many")
	require.Error(t, err)

	_, err = execute(t, "", "config", "set", "sync.max_attempts")
	require.Error(t, err)
}

func TestConfigShow_MasksPassword(t *testing.T) {
	setupTestServices(t)
	run(t, "config", "set", "search.password", "hunter2")

	out := run(t, "config", "show")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "********")
}
