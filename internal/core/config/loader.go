package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietanh/walletledger/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	return &cfg, nil
}

// BuildRegistry merges configured network overrides over the built-in
// chain table. A configured name that matches a default replaces it;
// unknown names are added as-is.
func BuildRegistry(networks []NetworkConfig) *domain.NetworkRegistry {
	infos := domain.DefaultNetworks()
	byName := make(map[domain.Network]int, len(infos))
	for i, info := range infos {
		byName[info.Network] = i
	}

	for _, nc := range networks {
		info := domain.NetworkInfo{
			Network:           nc.Name,
			ChainID:           nc.ChainID,
			NativeSymbol:      nc.NativeSymbol,
			NativeDecimals:    nc.NativeDecimals,
			ConfirmationDepth: nc.ConfirmationDepth,
		}
		if i, ok := byName[nc.Name]; ok {
			base := infos[i]
			if info.ChainID == 0 {
				info.ChainID = base.ChainID
			}
			if info.NativeSymbol == "" {
				info.NativeSymbol = base.NativeSymbol
			}
			if info.NativeDecimals == 0 {
				info.NativeDecimals = base.NativeDecimals
			}
			info.Name = base.Name
			infos[i] = info
			continue
		}
		infos = append(infos, info)
	}

	return domain.NewNetworkRegistry(infos)
}
