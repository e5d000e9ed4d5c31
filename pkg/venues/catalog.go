package venues

import "github.com/intentline-hq/intentline/pkg/models"

const (
	// MockswapName is the built-in swap venue
	MockswapName = "mockswap"
	// MocklendName is the built-in lending venue
	MocklendName = "mocklend"
	// MockstakeName is the built-in staking venue
	MockstakeName = "mockstake"
)

// VenueList contains the names of the built-in mock venues
var VenueList = []string{
	MockswapName,  // swap venue
	MocklendName,  // lending venue
	MockstakeName, // staking venue
}

// venueActions maps built-in venue names to the actions they handle
var venueActions = map[string][]models.ActionType{
	MockswapName:  {models.ActionSwap},
	MocklendName:  {models.ActionSupply, models.ActionBorrow, models.ActionWithdraw},
	MockstakeName: {models.ActionStake, models.ActionUnstake},
}

// DefaultFeeBps is the default fee in basis points per built-in venue
// Exposed for use by other packages
var DefaultFeeBps = map[string]int64{
	MockswapName:  200,
	MocklendName:  0,
	MockstakeName: 0,
}

// ActionsFor returns the actions a built-in venue handles
func ActionsFor(name string) []models.ActionType {
	actions, exists := venueActions[name]
	if !exists {
		return nil
	}
	return actions
}
