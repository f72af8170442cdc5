package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/payrail/payrail/internal/domain/model"
)

// tokenFile is the YAML shape of a token registry override file.
type tokenFile struct {
	Tokens []tokenEntry `yaml:"tokens"`
}

type tokenEntry struct {
	Symbol      string            `yaml:"symbol"`
	Name        string            `yaml:"name"`
	Chain       string            `yaml:"chain"`
	Decimals    int32             `yaml:"decimals"`
	CoinGeckoID string            `yaml:"coingecko_id"`
	Stablecoin  bool              `yaml:"stablecoin"`
	Contracts   map[string]string `yaml:"contracts"`
}

// LoadRegistry builds the token registry: the built-in set when path is
// empty, otherwise the YAML file at path. File order is preserved because it
// is the funding preference order.
func LoadRegistry(path string) (*model.Registry, error) {
	if path == "" {
		return model.NewRegistry(model.DefaultTokens())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens file %s: %w", path, err)
	}
	var file tokenFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse tokens file %s: %w", path, err)
	}
	if len(file.Tokens) == 0 {
		return nil, fmt.Errorf("tokens file %s defines no tokens", path)
	}

	tokens := make([]model.Token, 0, len(file.Tokens))
	for _, e := range file.Tokens {
		t := model.Token{
			Symbol:      e.Symbol,
			Name:        e.Name,
			Chain:       model.Chain(e.Chain),
			Decimals:    e.Decimals,
			CoinGeckoID: e.CoinGeckoID,
			Stablecoin:  e.Stablecoin,
		}
		if len(e.Contracts) > 0 {
			t.Contracts = make(map[model.Network]string, len(e.Contracts))
			for network, addr := range e.Contracts {
				t.Contracts[model.Network(network)] = addr
			}
		}
		tokens = append(tokens, t)
	}

	registry, err := model.NewRegistry(tokens)
	if err != nil {
		return nil, fmt.Errorf("tokens file %s: %w", path, err)
	}
	return registry, nil
}
