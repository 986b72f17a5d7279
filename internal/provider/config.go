// Package provider implements a configurable HTTP adapter for LLM API
// backends. The request/response shape of the target API is described by a
// YAML template rather than hardcoded per vendor, so any JSON chat endpoint
// can be driven by the same code path.
package provider

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Endpoint describes where and how requests are sent.
type Endpoint struct {
	URL        string            `yaml:"url"`
	Method     string            `yaml:"method"`
	Headers    map[string]string `yaml:"headers"`
	Parameters map[string]any    `yaml:"parameters"`
}

// PromptSpec configures how a prompt is placed into the request payload.
type PromptSpec struct {
	Role     string `yaml:"role"`
	Optional bool   `yaml:"optional"`
}

// ParamSpec maps a logical model parameter onto a payload field with a
// default value.
type ParamSpec struct {
	Field   string `yaml:"field"`
	Default any    `yaml:"default"`
}

// ModelParameters are the tunable generation parameters of the target API.
type ModelParameters struct {
	Temperature ParamSpec `yaml:"temperature"`
	MaxTokens   ParamSpec `yaml:"max_tokens"`
	TopP        ParamSpec `yaml:"top_p"`
	Model       ParamSpec `yaml:"model"`
	Stream      ParamSpec `yaml:"stream"`
}

// RequestTemplate describes how a query is turned into a request payload.
type RequestTemplate struct {
	SystemPrompt    PromptSpec      `yaml:"system_prompt"`
	UserPrompt      PromptSpec      `yaml:"user_prompt"`
	ModelParameters ModelParameters `yaml:"model_parameters"`
}

// ResponseTemplate describes how to read the target API's responses.
type ResponseTemplate struct {
	ContentPath   string              `yaml:"content_path"`
	Metadata      map[string]string   `yaml:"metadata"`
	ErrorCodes    map[string][]int    `yaml:"error_codes"`
	ErrorMessages map[string][]string `yaml:"error_messages"`
}

// Authentication describes how credentials are attached to requests.
// EnvVars maps logical credential names to environment variable names; the
// values themselves are resolved at load time and never serialized.
type Authentication struct {
	Type     string            `yaml:"type"`
	Location string            `yaml:"location"`
	Field    string            `yaml:"field"`
	Format   string            `yaml:"format"`
	EnvVars  map[string]string `yaml:"env_vars"`
}

// Config is a full adapter template for one LLM backend.
type Config struct {
	Endpoint       Endpoint         `yaml:"endpoint"`
	Request        RequestTemplate  `yaml:"request_template"`
	Response       ResponseTemplate `yaml:"response_template"`
	Authentication Authentication   `yaml:"authentication"`
	// APIKey is a direct credential override, taking precedence over any
	// env_vars resolution. Never written back to disk.
	APIKey string `yaml:"api_key,omitempty"`

	// secrets holds credential values resolved from params/environment,
	// keyed by logical name. Unexported so it can never be marshalled.
	secrets map[string]string
}

// DefaultConfig returns an adapter config with OpenAI-compatible defaults,
// used when a scan config omits the llm section entirely.
func DefaultConfig() Config {
	return Config{
		Endpoint: Endpoint{
			Method: "POST",
		},
		Request: RequestTemplate{
			SystemPrompt: PromptSpec{Role: "system", Optional: true},
			UserPrompt:   PromptSpec{Role: "user"},
			ModelParameters: ModelParameters{
				Temperature: ParamSpec{Field: "temperature", Default: 0.7},
				MaxTokens:   ParamSpec{Field: "max_tokens", Default: 500},
				TopP:        ParamSpec{Field: "top_p"},
				Model:       ParamSpec{Field: "model"},
				Stream:      ParamSpec{Field: "stream", Default: false},
			},
		},
		Response: ResponseTemplate{
			ContentPath: "choices[0].message.content",
			ErrorCodes:  map[string][]int{"success": {200}},
		},
		Authentication: Authentication{Type: "none"},
	}
}

// LoadConfig reads an adapter template from a YAML file and resolves its
// credentials. Values in params take precedence over the environment when
// resolving env_vars.
func LoadConfig(path string, params map[string]string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read adapter config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse adapter config: %w", err)
	}

	if err := cfg.Resolve(params); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve fills in credential values and injects the auth header. Call once
// after unmarshalling, before constructing an Adapter.
func (c *Config) Resolve(params map[string]string) error {
	if c.Endpoint.Method == "" {
		c.Endpoint.Method = "POST"
	}
	if key, ok := params["api_key"]; ok && key != "" {
		c.APIKey = key
	}

	auth := c.Authentication
	if auth.Type == "" || auth.Type == "none" {
		return nil
	}

	c.secrets = make(map[string]string, len(auth.EnvVars))
	for logical, envName := range auth.EnvVars {
		value := params[envName]
		if value == "" {
			value = os.Getenv(envName)
		}
		if value == "" && logical == "api_key" {
			value = c.APIKey
		}
		c.secrets[logical] = value
	}

	if auth.Location == "header" && auth.Field != "" {
		rendered, err := renderAuthFormat(auth.Format, c.secrets)
		if err != nil {
			return err
		}
		if c.Endpoint.Headers == nil {
			c.Endpoint.Headers = make(map[string]string)
		}
		c.Endpoint.Headers[auth.Field] = rendered
	}
	return nil
}

// renderAuthFormat substitutes "{name}" placeholders with resolved secrets,
// e.g. "Bearer {api_key}".
func renderAuthFormat(format string, secrets map[string]string) (string, error) {
	open := strings.Index(format, "{")
	end := strings.Index(format, "}")
	if open < 0 || end < open {
		return format, nil
	}
	name := format[open+1 : end]
	value, ok := secrets[name]
	if !ok {
		return "", fmt.Errorf("auth format references unknown credential %q", name)
	}
	return format[:open] + value + format[end+1:], nil
}

// Secret returns a resolved credential value by logical name.
func (c *Config) Secret(name string) string {
	if c.secrets == nil {
		return ""
	}
	return c.secrets[name]
}

// SecretValues returns every resolved credential value, for redaction checks.
func (c *Config) SecretValues() []string {
	var out []string
	if c.APIKey != "" {
		out = append(out, c.APIKey)
	}
	for _, v := range c.secrets {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Redacted returns a copy of the config with every credential-bearing field
// cleared, safe to serialize. The redaction list is explicit: api_key, the
// injected auth header, and the resolved secret map.
func (c Config) Redacted() Config {
	c.APIKey = ""
	c.secrets = nil

	auth := c.Authentication
	if auth.Location == "header" && auth.Field != "" && c.Endpoint.Headers != nil {
		headers := make(map[string]string, len(c.Endpoint.Headers))
		for k, v := range c.Endpoint.Headers {
			if strings.EqualFold(k, auth.Field) {
				continue
			}
			headers[k] = v
		}
		c.Endpoint.Headers = headers
	}
	return c
}
