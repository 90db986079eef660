package dsig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSignedBlockSHA1At2048Bits(t *testing.T) {
	digest := make([]byte, 20) // sha1 digest length
	block, err := buildSignedBlock(digest, 2049, true, "sha1")
	require.NoError(t, err)
	// A 2048-bit modulus (passed here as 2049 to account for the
	// implicit leading zero bit) produces a 255-byte block.
	require.Len(t, block, 255)
	require.Equal(t, byte(0x01), block[0])

	digestInfoLen := len(digestInfoPrefix["sha1"]) + len(digest)
	require.Equal(t, byte(0x00), block[len(block)-digestInfoLen-1])
}

func TestBuildSignedBlockEveryHashHasAPrefix(t *testing.T) {
	digestLens := map[string]int{"sha1": 20, "sha256": 32, "sha384": 48, "sha512": 64}
	for name, n := range digestLens {
		digest := make([]byte, n)
		block, err := buildSignedBlock(digest, 2049, true, name)
		require.NoErrorf(t, err, "hash %s", name)
		require.NotEmpty(t, block)
	}
}

func TestBuildSignedBlockNoPadReturnsBareDigestInfo(t *testing.T) {
	digest := make([]byte, 32)
	block, err := buildSignedBlock(digest, 2049, false, "sha256")
	require.NoError(t, err)
	require.Equal(t, len(digestInfoPrefix["sha256"])+32, len(block))
}

func TestBuildSignedBlockUnknownHashErrors(t *testing.T) {
	_, err := buildSignedBlock(make([]byte, 20), 2049, true, "md5")
	require.Error(t, err)
	require.ErrorIs(t, err, UnknownTransform)
}

func TestBuildSignedBlockTooSmallModulusErrors(t *testing.T) {
	digest := make([]byte, 64) // sha512
	_, err := buildSignedBlock(digest, 513, true, "sha512")
	require.Error(t, err)
	require.ErrorIs(t, err, KeyTooSmall)
}
