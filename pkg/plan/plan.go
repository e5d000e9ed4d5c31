package plan

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/models"
)

// Plan size bounds
const (
	MinSteps = 1
	MaxSteps = 100
)

// Per-step resource costs in abstract resource units. Swaps price above
// staking moves, staking above the generic lending actions.
const (
	BaseCost    uint64 = 21000
	CostSwap    uint64 = 120000
	CostStake   uint64 = 80000
	CostGeneric uint64 = 50000
)

// Validation errors for execution plans
var (
	ErrTooFewSteps       = errors.New("plan has too few steps")
	ErrTooManySteps      = errors.New("plan has too many steps")
	ErrInvalidAmount     = errors.New("step amount must be positive")
	ErrInvalidVenue      = errors.New("step venue is the zero address")
	ErrInvalidSwapParams = errors.New("swap step requires both assets and a positive min output")
)

// Validate checks an execution plan against the structural rules. It stops
// at the first offending step and wraps the sentinel with the step index.
func Validate(steps []models.ExecutionStep) error {
	if len(steps) < MinSteps {
		return ErrTooFewSteps
	}
	if len(steps) > MaxSteps {
		return fmt.Errorf("%w: %d steps, max %d", ErrTooManySteps, len(steps), MaxSteps)
	}

	for i, step := range steps {
		if step.Amount == nil || step.Amount.Sign() <= 0 {
			return fmt.Errorf("step %d: %w", i, ErrInvalidAmount)
		}
		if step.Venue == (common.Address{}) {
			return fmt.Errorf("step %d: %w", i, ErrInvalidVenue)
		}
		if !models.ValidAction(step.Action) {
			return fmt.Errorf("step %d: undefined action %q: %w", i, step.Action, models.ErrInvalidInput)
		}
		if step.Action == models.ActionSwap {
			if step.InputAsset == (common.Address{}) || step.OutputAsset == (common.Address{}) {
				return fmt.Errorf("step %d: %w", i, ErrInvalidSwapParams)
			}
			if step.MinOutput == nil || step.MinOutput.Sign() <= 0 {
				return fmt.Errorf("step %d: %w", i, ErrInvalidSwapParams)
			}
		}
	}
	return nil
}

// CostOf returns the resource cost of a single step by action type
func CostOf(action models.ActionType) uint64 {
	switch action {
	case models.ActionSwap:
		return CostSwap
	case models.ActionStake, models.ActionUnstake:
		return CostStake
	default:
		return CostGeneric
	}
}

// Estimate returns the projected resource cost of a plan: a fixed base plus
// a per-step cost by action type. The estimate depends only on the multiset
// of action types, so reordering steps never changes it.
func Estimate(steps []models.ExecutionStep) uint64 {
	total := BaseCost
	for _, step := range steps {
		total += CostOf(step.Action)
	}
	return total
}
