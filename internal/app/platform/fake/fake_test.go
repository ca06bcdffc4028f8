package fake

import (
	"context"
	"fmt"
	"testing"

	"github.com/shipforge/orchestrator/internal/app/platform"
	"github.com/stretchr/testify/require"
)

func TestAdapterDefaultsToSyntheticSuccess(t *testing.T) {
	a := New(0)
	body, err := a.CreateProduct(context.Background(), "item-1:shopify:0", platform.Payload{})
	require.NoError(t, err)
	id, ok := platform.DefaultIDExtractor("productId")(body)
	require.True(t, ok)
	require.Equal(t, "FAKE-item-1:shopify:0", id)
}

func TestAdapterScriptedRetrySequence(t *testing.T) {
	a := New(0)
	a.Script("item-1",
		Outcome{Err: fmt.Errorf("503 unavailable")},
		Outcome{Err: fmt.Errorf("503 unavailable")},
		Outcome{ProductID: "X"},
	)

	_, err := a.CreateProduct(context.Background(), "item-1:B:0", platform.Payload{})
	require.Error(t, err)
	_, err = a.CreateProduct(context.Background(), "item-1:B:1", platform.Payload{})
	require.Error(t, err)
	body, err := a.CreateProduct(context.Background(), "item-1:B:2", platform.Payload{})
	require.NoError(t, err)

	id, ok := platform.DefaultIDExtractor("productId")(body)
	require.True(t, ok)
	require.Equal(t, "X", id)
	require.Equal(t, 3, a.CallCount())
}
