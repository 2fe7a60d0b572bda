// Package mistral provides a model.Model for Mistral's OpenAI-compatible chat API.
package mistral

import (
	"os"

	"github.com/hupe1980/assistmesh/model/openai"
)

// DefaultBaseURL is Mistral's API endpoint.
const DefaultBaseURL = "https://api.mistral.ai/v1/"

// DefaultModel is used when no model name is configured.
const DefaultModel = "mistral-large-latest"

// NewModel creates a Mistral-backed model. The API key defaults to MISTRAL_API_KEY.
func NewModel(optFns ...func(o *openai.Options)) *openai.Model {
	return openai.NewModel(append([]func(o *openai.Options){func(o *openai.Options) {
		o.Model = DefaultModel
		o.BaseURL = DefaultBaseURL
		o.APIKey = os.Getenv("MISTRAL_API_KEY")
		o.Provider = "mistral"
	}}, optFns...)...)
}
