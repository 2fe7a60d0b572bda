// Package groq provides a model.Model for Groq's OpenAI-compatible chat API.
package groq

import (
	"os"

	"github.com/hupe1980/assistmesh/model/openai"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1/"

// DefaultModel is used when no model name is configured.
const DefaultModel = "llama3-70b-8192"

// NewModel creates a Groq-backed model. The API key defaults to GROQ_API_KEY.
func NewModel(optFns ...func(o *openai.Options)) *openai.Model {
	return openai.NewModel(append([]func(o *openai.Options){func(o *openai.Options) {
		o.Model = DefaultModel
		o.BaseURL = DefaultBaseURL
		o.APIKey = os.Getenv("GROQ_API_KEY")
		o.Provider = "groq"
	}}, optFns...)...)
}
