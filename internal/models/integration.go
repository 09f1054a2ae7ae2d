package models

import (
	"strings"
	"time"
)

// Provider is an upstream model vendor.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// Providers lists every provider in display order.
var Providers = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}

func (p Provider) IsValid() bool {
	return p == ProviderOpenAI || p == ProviderAnthropic || p == ProviderGoogle
}

// IntegrationStatus is the connection state of a provider credential.
type IntegrationStatus string

const (
	StatusConnected    IntegrationStatus = "connected"
	StatusError        IntegrationStatus = "error"
	StatusDisconnected IntegrationStatus = "disconnected"
)

func (s IntegrationStatus) IsValid() bool {
	return s == StatusConnected || s == StatusError || s == StatusDisconnected
}

// Integration is a provider credential and its last known status.
// At most one exists per (UserID, Provider).
type Integration struct {
	ID           string            `json:"id" yaml:"id"`
	UserID       string            `json:"userId" yaml:"userId"`
	Provider     Provider          `json:"provider" yaml:"provider"`
	APIKey       string            `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Status       IntegrationStatus `json:"status" yaml:"status"`
	LastTested   *time.Time        `json:"lastTested,omitempty" yaml:"lastTested,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
}

func (i Integration) Clone() Integration {
	out := i
	if i.LastTested != nil {
		t := *i.LastTested
		out.LastTested = &t
	}
	return out
}

// Redacted returns a copy whose key only keeps its last four characters.
func (i Integration) Redacted() Integration {
	out := i.Clone()
	if n := len(i.APIKey); n > 0 {
		keep := 4
		if n <= keep {
			keep = 0
		}
		out.APIKey = strings.Repeat("*", n-keep) + i.APIKey[n-keep:]
	}
	return out
}

// Position places a model in the 3-D brain view.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// CognitiveModel is the read-only descriptor of a connected provider's model.
type CognitiveModel struct {
	ID          string            `json:"id"`
	Provider    Provider          `json:"provider"`
	Name        string            `json:"name"`
	DisplayName string            `json:"displayName"`
	BrainRegion string            `json:"brainRegion"`
	Status      IntegrationStatus `json:"status"`
	Position    Position          `json:"position"`
}

var cognitiveModels = map[Provider]CognitiveModel{
	ProviderOpenAI: {
		ID:          "model-gpt4o",
		Provider:    ProviderOpenAI,
		Name:        "gpt-4o",
		DisplayName: "OpenAI GPT-4O",
		BrainRegion: "Left Cortex",
		Status:      StatusConnected,
		Position:    Position{X: -2, Y: 1, Z: 1},
	},
	ProviderAnthropic: {
		ID:          "model-claude",
		Provider:    ProviderAnthropic,
		Name:        "claude-3.5-sonnet",
		DisplayName: "Anthropic Claude 3.5",
		BrainRegion: "Right Cortex",
		Status:      StatusConnected,
		Position:    Position{X: 2, Y: 1, Z: 1},
	},
	ProviderGoogle: {
		ID:          "model-gemini",
		Provider:    ProviderGoogle,
		Name:        "gemini-2.5-pro",
		DisplayName: "Google Gemini 2.5",
		BrainRegion: "Occipital",
		Status:      StatusConnected,
		Position:    Position{X: 0, Y: -1, Z: 2},
	},
}

// ModelFor returns the fixed model descriptor of p.
func ModelFor(p Provider) (CognitiveModel, bool) {
	m, ok := cognitiveModels[p]
	return m, ok
}

// SaveKeyRequest is the payload for PUT /integrations/{provider}/key.
type SaveKeyRequest struct {
	APIKey string `json:"apiKey"`
}

// StatusRequest is the payload for PUT /integrations/{provider}/status.
type StatusRequest struct {
	Status       IntegrationStatus `json:"status" validate:"required,oneof=connected error disconnected"`
	ErrorMessage string            `json:"errorMessage"`
}
