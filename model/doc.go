// Package model defines the provider-agnostic abstraction over chat language
// models used by assistmesh agents.
//
// A Model streams Response chunks for a normalized Request made of
// instructions, role-based contents and tool definitions. Providers
// (openai, anthropic, groq, mistral) adapt vendor SDKs to this shape so that
// agents never branch on the vendor.
package model
