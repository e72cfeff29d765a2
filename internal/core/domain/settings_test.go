package domain

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSearchBackend_IsValid(t *testing.T) {
	assert.True(t, SearchBackendSQLite.IsValid())
	assert.True(t, SearchBackendWeaviate.IsValid())
	assert.False(t, SearchBackend("elastic").IsValid())
	assert.Equal(t, "weaviate", SearchBackendWeaviate.String())
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings("/home/test")

	assert.Equal(t, SearchBackendSQLite, s.Search.Backend)
	assert.True(t, s.Search.VerifyCerts)
	assert.Equal(t, filepath.Join("/home/test", ".annotext"), s.Store.DataDir)
	assert.False(t, s.Sync.ClearIndexesOnStartup)
	assert.Equal(t, 200*time.Millisecond, s.Sync.InitialBackoff())
	assert.Equal(t, 30*time.Second, s.Sync.MaxBackoff())
	assert.Equal(t, time.Second, s.Sync.PollInterval())
	assert.Equal(t, "warn", s.Log.Level)
}
