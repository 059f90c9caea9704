package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvFiles(t *testing.T) {
	require.Equal(t, []string{DefaultEnvFile}, EnvFiles(""))
	require.Equal(t, []string{DefaultEnvFile}, EnvFiles(" , "))
	require.Equal(t, []string{".env.local", ".env"}, EnvFiles(" .env.local, .env ,.env.local"))
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	shared := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(local, []byte("TRIBU_TEST_POLICY=at-least-3\n"), 0o600))
	require.NoError(t, os.WriteFile(shared, []byte("TRIBU_TEST_POLICY=all\nTRIBU_TEST_KEEP=file\nTRIBU_TEST_URL=http://localhost:8000\n"), 0o600))

	t.Setenv("TRIBU_TEST_KEEP", "env")
	for _, k := range []string{"TRIBU_TEST_POLICY", "TRIBU_TEST_URL"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	loaded, err := LoadEnvFiles(filepath.Join(dir, "missing.env"), local, shared)
	require.NoError(t, err)
	require.Equal(t, []string{local, shared}, loaded)
	require.Equal(t, "at-least-3", os.Getenv("TRIBU_TEST_POLICY"))
	require.Equal(t, "http://localhost:8000", os.Getenv("TRIBU_TEST_URL"))
	require.Equal(t, "env", os.Getenv("TRIBU_TEST_KEEP"))
}

func TestLoadEnvFiles_NothingToLoad(t *testing.T) {
	loaded, err := LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestLoadEnvFiles_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadEnvFiles(dir)
	require.ErrorContains(t, err, "is a directory")

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BROKEN=\"unterminated\n"), 0o600))
	_, err = LoadEnvFiles(path)
	require.Error(t, err)
}
