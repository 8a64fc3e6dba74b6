// SPDX-License-Identifier: MPL-2.0

package config

import "context"

type (
	// Provider produces the configuration of a run.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	// ProviderFunc adapts a function to Provider.
	ProviderFunc func(ctx context.Context, opts LoadOptions) (*Config, error)
)

// Load calls f.
func (f ProviderFunc) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return f(ctx, opts)
}

// NewProvider returns the provider reading pyproject.toml and the CIBW_*
// environment.
func NewProvider() Provider { return ProviderFunc(Load) }
