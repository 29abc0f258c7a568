package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()

	secrets := map[string]string{
		EnvAnthropicAPIKey: "sk-ant-test",
		EnvOpenAIAPIKey:    "sk-test",
		EnvTavilyAPIKey:    "tvly-test",
	}

	require.NoError(t, EncryptSecretsFile(dir, "hunter2", secrets))
	assert.True(t, SecretsFileExists(dir))

	// File must be 0600.
	info, err := os.Stat(filepath.Join(dir, ProjectConfigDir, secretsFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	decrypted, err := DecryptSecretsFile(dir, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, secrets, decrypted)
}

func TestDecryptWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "correct", map[string]string{"K": "v"}))

	_, err := DecryptSecretsFile(dir, "wrong")
	assert.Error(t, err)
}

func TestDecryptCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectConfigDir, secretsFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("short"), 0600))

	_, err := DecryptSecretsFile(dir, "any")
	assert.Error(t, err)
}

func TestGetSecretPrecedence(t *testing.T) {
	defer SetDecryptedSecrets(nil)

	// Environment fallback.
	t.Setenv("CODESWARM_TEST_SECRET", "from-env")
	val, err := GetSecret("CODESWARM_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", val)

	// In-memory secrets win over environment.
	SetDecryptedSecrets(map[string]string{"CODESWARM_TEST_SECRET": "from-file"})
	val, err = GetSecret("CODESWARM_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-file", val)

	_, err = GetSecret("CODESWARM_MISSING_SECRET")
	assert.Error(t, err)
}

func TestSetDeleteSecret(t *testing.T) {
	defer SetDecryptedSecrets(nil)

	require.NoError(t, SetSecret("A", "1"))
	require.NoError(t, SetSecret("B", "2"))
	assert.ElementsMatch(t, []string{"A", "B"}, GetDecryptedSecretNames())

	require.NoError(t, DeleteSecret("A"))
	assert.ElementsMatch(t, []string{"B"}, GetDecryptedSecretNames())
}
