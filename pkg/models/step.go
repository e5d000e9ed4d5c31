package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ActionType identifies the kind of operation an execution step performs
type ActionType string

const (
	ActionSwap     ActionType = "swap"
	ActionStake    ActionType = "stake"
	ActionSupply   ActionType = "supply"
	ActionBorrow   ActionType = "borrow"
	ActionWithdraw ActionType = "withdraw"
	ActionUnstake  ActionType = "unstake"
)

// Actions lists every defined action type
var Actions = []ActionType{
	ActionSwap,
	ActionStake,
	ActionSupply,
	ActionBorrow,
	ActionWithdraw,
	ActionUnstake,
}

// ValidAction reports whether a is a defined action type
func ValidAction(a ActionType) bool {
	switch a {
	case ActionSwap, ActionStake, ActionSupply, ActionBorrow, ActionWithdraw, ActionUnstake:
		return true
	}
	return false
}

// ExecutionStep is a single typed operation within an intent's execution plan
type ExecutionStep struct {
	Action      ActionType     `json:"action"`
	Venue       common.Address `json:"venue"`
	InputAsset  common.Address `json:"input_asset"`
	OutputAsset common.Address `json:"output_asset"`
	Amount      *big.Int       `json:"amount"`
	MinOutput   *big.Int       `json:"min_output,omitempty"` // required for swap steps
}
