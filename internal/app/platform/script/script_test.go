package script

import (
	"testing"

	"github.com/shipforge/orchestrator/internal/app/platform"
	"github.com/stretchr/testify/require"
)

const sampleScript = `
function transform(item) {
	return {
		name: "Widget " + item.id,
		description: "a fine widget",
		price: "9.99",
		stock: item.attributes.stock || 0,
		attributes: {},
		keywords: [],
		tags: []
	};
}
`

func TestTransformerProducesPayload(t *testing.T) {
	tr, err := Transformer(sampleScript)
	require.NoError(t, err)

	payload, err := tr(platform.Item{ID: "item-1", Attributes: map[string]any{"stock": float64(5)}})
	require.NoError(t, err)
	require.Equal(t, "Widget item-1", payload.Name)
	require.Equal(t, "9.99", payload.Price)
	require.Equal(t, 5, payload.Stock)
}

func TestTransformerRejectsInvalidCompile(t *testing.T) {
	_, err := Transformer("this is not javascript {{{")
	require.Error(t, err)
}

func TestTransformerRejectsMissingRequiredField(t *testing.T) {
	tr, err := Transformer(`function transform(item) { return {description: "x"}; }`)
	require.NoError(t, err)

	_, err = tr(platform.Item{ID: "item-2"})
	require.Error(t, err)
	var invalid *platform.InvalidItemError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "name", invalid.Field)
}
