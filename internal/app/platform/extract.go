package platform

import "github.com/tidwall/gjson"

// DefaultIDExtractor builds an IDExtractor that reads the platform-assigned
// product id out of a JSON response at the given gjson path, grounded on
// the same gjson.GetBytes idiom the corpus uses for data-feed field
// extraction. Absence (missing or empty result) is reported as the engine's
// ErrKindMissingProductID, a distinct error kind so operators can tell API
// contract drift apart from an ordinary failed call.
func DefaultIDExtractor(path string) IDExtractor {
	return func(body ResponseBlob) (string, bool) {
		result := gjson.GetBytes(body, path)
		if !result.Exists() {
			return "", false
		}
		id := result.String()
		if id == "" {
			return "", false
		}
		return id, true
	}
}
