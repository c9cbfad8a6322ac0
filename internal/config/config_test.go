package config_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginhost/internal/config"
)

func TestLoadFromYAML(t *testing.T) {
	snap, err := config.Load([]byte("host:\n  maxFlows: 10\n  name: demo\n"))
	require.NoError(t, err)

	assert.Equal(t, 10, snap.GetInt("host.maxFlows"))
	assert.Equal(t, "demo", snap.GetString("host.name"))
}

func TestSnapshotIsImmutableAfterHostMutates(t *testing.T) {
	v := viper.New()
	v.Set("limit", 5)

	snap := config.NewSnapshot(v)
	v.Set("limit", 50)

	assert.Equal(t, 5, snap.GetInt("limit"), "snapshot must not observe later writes to the source viper")
}

func TestSubReturnsNilForMissingKey(t *testing.T) {
	snap := config.Empty()
	assert.Nil(t, snap.Sub("does.not.exist"))
}

func TestSubScopesToNestedTree(t *testing.T) {
	snap, err := config.Load([]byte("flow:\n  retries: 3\n"))
	require.NoError(t, err)

	sub := snap.Sub("flow")
	require.NotNil(t, sub)
	assert.Equal(t, 3, sub.GetInt("retries"))
}

func TestIsSet(t *testing.T) {
	snap := config.Empty()
	assert.False(t, snap.IsSet("missing"))
}
