package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnvVars = []string{
	"REGION", "ETCD_ENDPOINTS", "ETCD_PREFIX", "SUBNET", "NAMESPACE",
	"CACHE_TTL_SECONDS", "LINODE_TOKEN", "LINODE_MAX_ATTEMPTS",
	"LINODE_MAX_CONCURRENT_FETCHES", "REFRESH_JOB_MANIFEST_PATH",
	"SERVER_PORT", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
	"HEALTH_CHECK_TIMEOUT",
}

func withCleanEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string, len(allEnvVars))
	for _, key := range allEnvVars {
		original[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	t.Cleanup(func() {
		for key, value := range original {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	})
}

func TestLoad_RequiresRegionAndEtcdEndpoints(t *testing.T) {
	withCleanEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REGION")

	os.Setenv("REGION", "us-east")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ETCD_ENDPOINTS")

	os.Setenv("ETCD_ENDPOINTS", "127.0.0.1:2379")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "us-east", cfg.Region)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.EtcdEndpoints)
}

func TestLoad_Defaults(t *testing.T) {
	withCleanEnv(t)
	os.Setenv("REGION", "us-east")
	os.Setenv("ETCD_ENDPOINTS", "127.0.0.1:2379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/vlan/ip/", cfg.EtcdPrefix)
	assert.Equal(t, "kube-system", cfg.Namespace)
	assert.Equal(t, time.Duration(0), cfg.CacheTTL)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 5, cfg.CloudMaxAttempts)
	assert.Equal(t, 8, cfg.CloudMaxConcurrent)
}

func TestLoad_EtcdEndpointsSplitAndTrimmed(t *testing.T) {
	withCleanEnv(t)
	os.Setenv("REGION", "us-east")
	os.Setenv("ETCD_ENDPOINTS", " 10.0.0.1:2379 , 10.0.0.2:2379,10.0.0.3:2379 ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379", "10.0.0.3:2379"}, cfg.EtcdEndpoints)
}

func TestLoad_CacheTTLSecondsParsedAsDuration(t *testing.T) {
	withCleanEnv(t)
	os.Setenv("REGION", "us-east")
	os.Setenv("ETCD_ENDPOINTS", "127.0.0.1:2379")
	os.Setenv("CACHE_TTL_SECONDS", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
}

func TestConfig_SubnetOrErr(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.SubnetOrErr()
	assert.Error(t, err)

	cfg.Subnet = "10.0.0.0/24"
	subnet, err := cfg.SubnetOrErr()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/24", subnet)
}

func TestConfig_Address(t *testing.T) {
	cfg := &Config{ServerPort: "9090"}
	assert.Equal(t, ":9090", cfg.Address())
}

func TestLoadFromFileOrEnv_MissingFileFallsBackToEnv(t *testing.T) {
	withCleanEnv(t)
	os.Setenv("REGION", "us-east")
	os.Setenv("ETCD_ENDPOINTS", "127.0.0.1:2379")

	cfg, err := LoadFromFileOrEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "us-east", cfg.Region)
}

func TestLoadFromFileOrEnv_WithFileAndEnvOverride(t *testing.T) {
	withCleanEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "vlanipam.yaml")
	yamlContent := `
region: us-east
etcd_endpoints:
  - 10.0.0.1:2379
  - 10.0.0.2:2379
subnet: 10.0.0.0/24
namespace: vlanipam
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o600))
	os.Setenv("SERVER_PORT", "9999")

	cfg, err := LoadFromFileOrEnv(configPath)
	require.NoError(t, err)
	assert.Equal(t, "us-east", cfg.Region)
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, "vlanipam", cfg.Namespace)
	assert.Equal(t, "9999", cfg.ServerPort)
}

func TestSaveToFileAndReload(t *testing.T) {
	withCleanEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "saved.yaml")

	cfg := &Config{
		Region:        "us-east",
		EtcdEndpoints: []string{"10.0.0.1:2379"},
		EtcdPrefix:    "/vlan/ip/",
		Subnet:        "10.0.0.0/24",
		Namespace:     "kube-system",
		ServerPort:    "8080",
	}
	require.NoError(t, SaveToFile(cfg, configPath))

	reloaded, err := LoadFromFileOrEnv(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Region, reloaded.Region)
	assert.Equal(t, cfg.EtcdEndpoints, reloaded.EtcdEndpoints)
	assert.Equal(t, cfg.Subnet, reloaded.Subnet)
}
