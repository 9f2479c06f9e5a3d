package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ample/codec"
	"ample/eventkind"
)

func TestKindBitsetSupersets(t *testing.T) {
	all := BitsetAll()
	assert.True(t, all.Supersets(all))

	var onlyAccounts KindBitset
	onlyAccounts = onlyAccounts.With(eventkind.Account)
	assert.True(t, all.Supersets(onlyAccounts))
	assert.False(t, onlyAccounts.Supersets(all))
}

func TestDescriptorRoundTrip(t *testing.T) {
	want := Descriptor{
		ProtocolVersion:       ProtocolVersion,
		EnabledKinds:          BitsetAll(),
		AdvertisedCompression: codec.Zstd,
		ProducerID:            NewProducerID(),
	}
	var buf bytes.Buffer
	require.NoError(t, writeDescriptor(&buf, want))

	got, err := readDescriptor(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
