package secret_manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvSecretManager(t *testing.T) {
	t.Setenv("HEARTH_TEST_SECRET", "s3cret")

	sm := EnvSecretManager{}
	secret, err := sm.GetSecret("TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", secret)

	_, err = sm.GetSecret("MISSING_SECRET")
	assert.ErrorContains(t, err, "not found in environment")

	assert.Error(t, sm.SetSecret("TEST_SECRET", "x"))
	assert.Error(t, sm.DeleteSecret("TEST_SECRET"))
	assert.Equal(t, EnvSecretManagerType, sm.GetType())
}

func TestMockSecretManager(t *testing.T) {
	t.Parallel()

	sm := &MockSecretManager{}

	// unset secrets resolve to a fake value so tests never need real keys
	secret, err := sm.GetSecret(ApiKeySecretName)
	require.NoError(t, err)
	assert.Equal(t, "fake secret", secret)

	require.NoError(t, sm.SetSecret("custom", "value"))
	secret, err = sm.GetSecret("custom")
	require.NoError(t, err)
	assert.Equal(t, "value", secret)

	require.NoError(t, sm.DeleteSecret("custom"))
	secret, err = sm.GetSecret("custom")
	require.NoError(t, err)
	assert.Equal(t, "fake secret", secret)
}

func TestGetSecretManager(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KeyringSecretManagerType, GetSecretManager(KeyringSecretManagerType).GetType())
	assert.Equal(t, MockSecretManagerType, GetSecretManager(MockSecretManagerType).GetType())
	assert.Equal(t, EnvSecretManagerType, GetSecretManager(EnvSecretManagerType).GetType())
	assert.Equal(t, EnvSecretManagerType, GetSecretManager("unknown").GetType())
}
