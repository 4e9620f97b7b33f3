package cursor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecPassThroughWithoutKMS(t *testing.T) {
	codec := NewCodec(nil)
	ctx := context.Background()

	assert.Equal(t, "cursor-1", codec.Encrypt(ctx, "cursor-1"))
	assert.Equal(t, "cursor-1", codec.Decrypt(ctx, "cursor-1"))
	assert.Equal(t, "", codec.Encrypt(ctx, ""))
}

func TestCodecRoundTrip(t *testing.T) {
	kms, err := NewLocalKMS("proj", "loc", "ring", "key")
	require.NoError(t, err)

	codec := NewCodec(kms)
	ctx := context.Background()

	token := codec.Encrypt(ctx, "cursor-1")
	require.NotEmpty(t, token)
	assert.NotEqual(t, "cursor-1", token)

	assert.Equal(t, "cursor-1", codec.Decrypt(ctx, token))
}

func TestCodecBadTokenYieldsEmptyCursor(t *testing.T) {
	kms, err := NewLocalKMS("proj", "loc", "ring", "key")
	require.NoError(t, err)

	codec := NewCodec(kms)
	ctx := context.Background()

	assert.Equal(t, "", codec.Decrypt(ctx, "not-base64!!"))
	assert.Equal(t, "", codec.Decrypt(ctx, "dG9vLXNob3J0"))
}

func TestCodecKeysMustMatch(t *testing.T) {
	first, err := NewLocalKMS("proj", "loc", "ring", "key")
	require.NoError(t, err)
	second, err := NewLocalKMS("proj", "loc", "ring", "other-key")
	require.NoError(t, err)

	ctx := context.Background()
	token := NewCodec(first).Encrypt(ctx, "cursor-1")

	assert.Equal(t, "", NewCodec(second).Decrypt(ctx, token))
}
