package actions

import (
	"context"
	"encoding/json"
)

// Echo returns the parameters as the result unchanged. Useful for wiring
// checks and local development without a downstream endpoint.
func Echo(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
	if len(params) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return params, nil
}
