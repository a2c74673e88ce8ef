// Package config loads backend construction inputs from the environment.
// It only reads credentials and endpoints; validating and using them is the
// backends' business.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Anthropic holds constructor inputs for the Anthropic backend.
type Anthropic struct {
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	BaseURL string `env:"ANTHROPIC_BASE_URL"`
	Model   string `env:"PROMPTWIRE_ANTHROPIC_MODEL"`
}

// OpenAI holds constructor inputs for the OpenAI backend.
type OpenAI struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL"`
	Model   string `env:"PROMPTWIRE_OPENAI_MODEL"`
}

// OpenRouter holds constructor inputs for the OpenRouter backend.
type OpenRouter struct {
	APIKey  string `env:"OPENROUTER_API_KEY"`
	BaseURL string `env:"OPENROUTER_BASE_URL"`
	Model   string `env:"PROMPTWIRE_OPENROUTER_MODEL"`
}

// Gemini holds constructor inputs for the Gemini backend.
type Gemini struct {
	APIKey  string `env:"GEMINI_API_KEY"`
	BaseURL string `env:"GEMINI_BASE_URL"`
	Model   string `env:"PROMPTWIRE_GEMINI_MODEL"`
}

// Settings bundles every backend's environment configuration.
type Settings struct {
	Anthropic  Anthropic
	OpenAI     OpenAI
	OpenRouter OpenRouter
	Gemini     Gemini
}

// Load reads settings from the process environment.
func Load() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return &s, nil
}

// Validate checks the fields a backend cannot run without.
func (a Anthropic) Validate() error {
	return NewValidator().RequireNonEmpty("ANTHROPIC_API_KEY", a.APIKey).Error()
}

// Validate checks the fields a backend cannot run without.
func (o OpenAI) Validate() error {
	return NewValidator().RequireNonEmpty("OPENAI_API_KEY", o.APIKey).Error()
}

// Validate checks the fields a backend cannot run without.
func (o OpenRouter) Validate() error {
	return NewValidator().RequireNonEmpty("OPENROUTER_API_KEY", o.APIKey).Error()
}

// Validate checks the fields a backend cannot run without.
func (g Gemini) Validate() error {
	return NewValidator().RequireNonEmpty("GEMINI_API_KEY", g.APIKey).Error()
}
