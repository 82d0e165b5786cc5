package stage

import (
	"encoding/json"
	"strings"

	"astrodriz/internal/services"
)

// ParseProducts decodes the combined-product list persisted on a run.
// On failure it returns a services.ErrValidation suitable for stage Execute methods.
func ParseProducts(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	var products []string
	if err := json.Unmarshal([]byte(trimmed), &products); err != nil {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "parse products",
			"Product list missing or invalid; rerun alignment", err)
	}
	return products, nil
}

// EncodeProducts serializes the combined-product list for ledger persistence.
func EncodeProducts(products []string) (string, error) {
	if len(products) == 0 {
		return "", nil
	}
	data, err := json.Marshal(products)
	if err != nil {
		return "", services.Wrap(
			services.ErrValidation, "stage", "encode products",
			"Product list could not be serialized", err)
	}
	return string(data), nil
}
