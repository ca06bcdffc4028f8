package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIDExtractor(t *testing.T) {
	extract := DefaultIDExtractor("productId")

	id, ok := extract(ResponseBlob(`{"productId":"P-1"}`))
	require.True(t, ok)
	require.Equal(t, "P-1", id)

	_, ok = extract(ResponseBlob(`{"other":"x"}`))
	require.False(t, ok)

	_, ok = extract(ResponseBlob(`{"productId":""}`))
	require.False(t, ok)
}

func TestIsPermanent(t *testing.T) {
	require.True(t, IsPermanent(NewPermanentError(ErrKindBanned, "account banned", nil)))
	require.False(t, IsPermanent(NewTransientError(ErrKindNetwork, "timeout", nil)))
	require.False(t, IsPermanent(nil))
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("shopify")
	require.False(t, ok)

	r.Register("shopify", Binding{ExtractID: DefaultIDExtractor("id")})
	b, ok := r.Lookup("shopify")
	require.True(t, ok)
	require.NotNil(t, b.ExtractID)
	require.Contains(t, r.Platforms(), "shopify")
}
