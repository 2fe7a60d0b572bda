package model

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/assistmesh/core"
)

// ObservationText renders a function response as the text a provider sends
// back to the model. Failed calls render their error so the model can react.
func ObservationText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		return "error: " + fr.Error
	}

	switch v := fr.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
