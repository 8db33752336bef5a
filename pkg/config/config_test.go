package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("listen", "0.0.0.0:7077", "")
	cmd.Flags().String("admin.listen", "127.0.0.1:9090", "")
	return cmd
}

func TestLoadDefaultsWithoutFiles(t *testing.T) {
	snap, err := Load(viper.New(), newTestCmd(), "", "", "")
	require.NoError(t, err)

	assert.Equal(t, DefaultPrefix, snap.Prefix)
	assert.Equal(t, "0.0.0.0:7077", snap.ListenAddress)
	assert.Equal(t, "127.0.0.1:9090", snap.AdminAddress)
	assert.Equal(t, 10, int(snap.AskTimeout.Seconds()))
	assert.Nil(t, snap.DefaultParallelism)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	contents := "spark:\n  executor:\n    memory: 2g\n  hostPort: 10.0.0.1:7077\nakka:\n  askTimeout: 30\ndefault:\n  parallelism: 8\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(contents), 0o644))

	snap, err := Load(viper.New(), newTestCmd(), "", cfgPath, "")
	require.NoError(t, err)

	assert.Equal(t, 30, int(snap.AskTimeout.Seconds()))
	require.NotNil(t, snap.DefaultParallelism)
	assert.Equal(t, 8, *snap.DefaultParallelism)

	assert.Equal(t, "2g", snap.Properties["spark.executor.memory"])
	_, hostPortForwarded := snap.Properties["spark.hostPort"]
	assert.False(t, hostPortForwarded, "hostPort must never be forwarded to executors")
}

func TestLoadForwardsPrefixedPropertiesSuppliedOnlyViaEnvironment(t *testing.T) {
	t.Setenv("SPARK_EXECUTOR_MEMORY", "4g")
	t.Setenv("SPARK_HOSTPORT", "10.0.0.9:7077")

	snap, err := Load(viper.New(), newTestCmd(), "", "", "")
	require.NoError(t, err)

	assert.Equal(t, "4g", snap.Properties["spark.executor.memory"])
	_, hostPortForwarded := snap.Properties["spark.hostPort"]
	assert.False(t, hostPortForwarded, "hostPort must never be forwarded to executors, env-sourced or not")
}

func TestLoadMissingConfigFileIsNotAnError(t *testing.T) {
	_, err := Load(viper.New(), newTestCmd(), "", filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.NoError(t, err)
}

func TestDefaultParallelismOrFallback(t *testing.T) {
	withOverride := 5
	snapWithOverride := Snapshot{DefaultParallelism: &withOverride}
	assert.Equal(t, 5, snapWithOverride.DefaultParallelismOrFallback(100))

	snapWithoutOverride := Snapshot{}
	assert.Equal(t, 2, snapWithoutOverride.DefaultParallelismOrFallback(0))
	assert.Equal(t, 2, snapWithoutOverride.DefaultParallelismOrFallback(2))
	assert.Equal(t, 8, snapWithoutOverride.DefaultParallelismOrFallback(8))
}
