// Package script builds a platform.Transformer from a small JS snippet,
// evaluated in a sandboxed goja runtime. Nothing in the Registration
// Engine builds one from an account's stored script; a caller wires the
// result into a platform.Binding itself. This mirrors the teacher's TEE script-engine pattern for
// user-supplied logic, stripped of any enclave/attestation framing — there
// is no such concept in this domain.
package script

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/shipforge/orchestrator/internal/app/platform"
)

const entryPoint = "transform"

// Transformer compiles script once and returns a platform.Transformer that
// evaluates it for every item. The script must define a top-level function
// named "transform(item)" returning an object shaped like platform.Payload
// (snake_case keys matching the JSON tags below).
func Transformer(script string) (platform.Transformer, error) {
	if _, err := goja.Compile("transform.js", script, false); err != nil {
		return nil, fmt.Errorf("compile transform script: %w", err)
	}

	return func(item platform.Item) (platform.Payload, error) {
		vm := goja.New()
		if _, err := vm.RunString(script); err != nil {
			return platform.Payload{}, fmt.Errorf("load transform script: %w", err)
		}

		fn, ok := goja.AssertFunction(vm.Get(entryPoint))
		if !ok {
			return platform.Payload{}, fmt.Errorf("transform script: %q is not a function", entryPoint)
		}

		attrs := item.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		input := map[string]any{"id": item.ID, "attributes": attrs}

		result, err := fn(goja.Undefined(), vm.ToValue(input))
		if err != nil {
			return platform.Payload{}, fmt.Errorf("run transform script for item %q: %w", item.ID, err)
		}

		return decodePayload(item.ID, result.Export())
	}, nil
}

func decodePayload(itemID string, exported any) (platform.Payload, error) {
	raw, err := json.Marshal(exported)
	if err != nil {
		return platform.Payload{}, fmt.Errorf("marshal transform result for item %q: %w", itemID, err)
	}

	var decoded scriptPayload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return platform.Payload{}, fmt.Errorf("decode transform result for item %q: %w", itemID, err)
	}

	if decoded.Name == "" {
		return platform.Payload{}, platform.NewInvalidItemError(itemID, "name")
	}
	if decoded.Price == "" {
		return platform.Payload{}, platform.NewInvalidItemError(itemID, "price")
	}

	return platform.Payload{
		Name:                decoded.Name,
		Description:         decoded.Description,
		Price:                decoded.Price,
		OriginalPrice:        decoded.OriginalPrice,
		Stock:                decoded.Stock,
		Weight:               decoded.Weight,
		CategoryID:           decoded.CategoryID,
		Brand:                decoded.Brand,
		MainImageURL:         decoded.MainImageURL,
		AdditionalImageURLs:  decoded.AdditionalImageURLs,
		Attributes:           decoded.Attributes,
		Keywords:             decoded.Keywords,
		Tags:                 decoded.Tags,
	}, nil
}

// scriptPayload mirrors platform.Payload with JSON tags so a script's
// plain-object return value decodes without the script author needing to
// know Go field names.
type scriptPayload struct {
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	Price               string            `json:"price"`
	OriginalPrice       string            `json:"original_price"`
	Stock               int               `json:"stock"`
	Weight              float64           `json:"weight"`
	CategoryID          string            `json:"category_id"`
	Brand               string            `json:"brand"`
	MainImageURL        string            `json:"main_image_url"`
	AdditionalImageURLs []string          `json:"additional_image_urls"`
	Attributes          map[string]string `json:"attributes"`
	Keywords            []string          `json:"keywords"`
	Tags                []string          `json:"tags"`
}
