package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/intentline-hq/intentline/pkg/venues"
)

// builtinVenueAddresses maps built-in venue names to their deployed addresses
var builtinVenueAddresses = map[string]string{
	venues.MockswapName:  "0x00000000000000000000000000000000000000A1",
	venues.MocklendName:  "0x00000000000000000000000000000000000000A2",
	venues.MockstakeName: "0x00000000000000000000000000000000000000A3",
}

// GetVenueAddress returns the deployed address of a built-in venue
func GetVenueAddress(name string) string {
	address, exists := builtinVenueAddresses[name]
	if !exists {
		return ""
	}
	return address
}

// VenueConfig describes one execution venue in the manifest
type VenueConfig struct {
	Name    string   `yaml:"name"`
	Address string   `yaml:"address"`
	FeeBps  int64    `yaml:"fee_bps"`
	Actions []string `yaml:"actions"`
}

// Validate checks a single manifest entry
func (v VenueConfig) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("venue name is required")
	}
	if !common.IsHexAddress(v.Address) {
		return fmt.Errorf("invalid venue address: %s", v.Address)
	}
	if v.FeeBps < 0 || v.FeeBps >= 10000 {
		return fmt.Errorf("fee_bps %d out of range, must be between 0 and 9999", v.FeeBps)
	}
	if len(v.Actions) == 0 {
		return fmt.Errorf("venue must handle at least one action")
	}
	for _, action := range v.Actions {
		if !models.ValidAction(models.ActionType(action)) {
			return fmt.Errorf("unknown action %q", action)
		}
	}
	return nil
}

// GetEnvVenueConfigs returns the venue manifest. When VENUES_MANIFEST names a
// YAML file the manifest is loaded from it, otherwise the built-in venues are
// used with SWAP_FEE_BPS applied to the swap venue.
func GetEnvVenueConfigs() ([]VenueConfig, error) {
	if path := os.Getenv("VENUES_MANIFEST"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read venues manifest: %w", err)
		}
		var manifest struct {
			Venues []VenueConfig `yaml:"venues"`
		}
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("parse venues manifest: %w", err)
		}
		if len(manifest.Venues) == 0 {
			return nil, fmt.Errorf("venues manifest %s defines no venues", path)
		}
		return manifest.Venues, nil
	}

	swapFee, err := GetEnvSwapFeeBps()
	if err != nil {
		return nil, err
	}
	configs := make([]VenueConfig, 0, len(venues.VenueList))
	for _, name := range venues.VenueList {
		fee := venues.DefaultFeeBps[name]
		if name == venues.MockswapName {
			fee = swapFee
		}
		catalogActions := venues.ActionsFor(name)
		actions := make([]string, 0, len(catalogActions))
		for _, action := range catalogActions {
			actions = append(actions, string(action))
		}
		configs = append(configs, VenueConfig{
			Name:    name,
			Address: GetVenueAddress(name),
			FeeBps:  fee,
			Actions: actions,
		})
	}
	return configs, nil
}

// GetEnvSwapFeeBps returns the built-in swap venue fee from environment variables
func GetEnvSwapFeeBps() (int64, error) {
	fee := os.Getenv("SWAP_FEE_BPS")
	if fee == "" {
		return venues.DefaultFeeBps[venues.MockswapName], nil
	}
	feeInt, err := strconv.ParseInt(fee, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SWAP_FEE_BPS value: %s, must be an integer", fee)
	}
	if feeInt < 0 || feeInt >= 10000 {
		return 0, fmt.Errorf("SWAP_FEE_BPS must be between 0 and 9999")
	}
	return feeInt, nil
}
