// Package parser turns free-text intent descriptions into typed execution
// plans. The grammar is one action clause per step, clauses joined by
// "then": "swap 100 USDC for WETH, then stake 98 WETH on mockstake".
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/intentline-hq/intentline/pkg/venues"
)

// DefaultSlippageBps is the slippage floor applied to swap steps when the
// description does not pin one: min output is amount less this many basis
// points.
const DefaultSlippageBps = 500

// ErrUnparsable marks a description clause the grammar does not cover
var ErrUnparsable = errors.New("unparsable description")

// verbActions maps clause verbs to step actions
var verbActions = map[string]models.ActionType{
	"swap":     models.ActionSwap,
	"trade":    models.ActionSwap,
	"exchange": models.ActionSwap,
	"stake":    models.ActionStake,
	"unstake":  models.ActionUnstake,
	"supply":   models.ActionSupply,
	"lend":     models.ActionSupply,
	"deposit":  models.ActionSupply,
	"borrow":   models.ActionBorrow,
	"withdraw": models.ActionWithdraw,
}

// Parser resolves description clauses against the configured venues and
// asset symbol table
type Parser struct {
	venues      *venues.Registry
	assets      map[string]common.Address
	slippageBps int64
}

// NewParser creates a parser. Unknown slippage values fall back to
// DefaultSlippageBps; asset symbols are matched case-insensitively.
func NewParser(vreg *venues.Registry, assets map[string]common.Address, slippageBps int64) *Parser {
	if slippageBps <= 0 || slippageBps >= 10000 {
		slippageBps = DefaultSlippageBps
	}
	table := make(map[string]common.Address, len(assets))
	for symbol, addr := range assets {
		table[strings.ToUpper(symbol)] = addr
	}
	return &Parser{
		venues:      vreg,
		assets:      table,
		slippageBps: slippageBps,
	}
}

// Parse translates a description into execution steps, one per clause
func (p *Parser) Parse(description string) ([]models.ExecutionStep, error) {
	text := strings.TrimSpace(description)
	if text == "" {
		return nil, fmt.Errorf("empty description: %w", models.ErrInvalidInput)
	}

	clauses := splitClauses(text)
	if len(clauses) == 0 {
		return nil, fmt.Errorf("no clauses in description: %w", ErrUnparsable)
	}

	steps := make([]models.ExecutionStep, 0, len(clauses))
	for i, clause := range clauses {
		step, err := p.parseClause(clause)
		if err != nil {
			return nil, fmt.Errorf("clause %d %q: %w", i, clause, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (p *Parser) parseClause(clause string) (models.ExecutionStep, error) {
	fields := strings.Fields(clause)
	if len(fields) == 0 {
		return models.ExecutionStep{}, ErrUnparsable
	}

	action, ok := verbActions[fields[0]]
	if !ok {
		return models.ExecutionStep{}, fmt.Errorf("%w: unknown verb %q", ErrUnparsable, fields[0])
	}

	if action == models.ActionSwap {
		return p.parseSwap(fields)
	}
	return p.parseSingleAsset(action, fields)
}

// parseSwap handles "<verb> <amount> <asset> for <asset> [on <venue>]"
func (p *Parser) parseSwap(fields []string) (models.ExecutionStep, error) {
	if len(fields) < 5 || (fields[3] != "for" && fields[3] != "to") {
		return models.ExecutionStep{}, fmt.Errorf("%w: expected %q", ErrUnparsable, "swap <amount> <asset> for <asset>")
	}
	amount, err := parseAmount(fields[1])
	if err != nil {
		return models.ExecutionStep{}, err
	}
	venue, err := p.venueFor(models.ActionSwap, fields[5:])
	if err != nil {
		return models.ExecutionStep{}, err
	}
	return models.ExecutionStep{
		Action:      models.ActionSwap,
		Venue:       venue,
		InputAsset:  p.assetAddress(fields[2]),
		OutputAsset: p.assetAddress(fields[4]),
		Amount:      amount,
		MinOutput:   applySlippage(amount, p.slippageBps),
	}, nil
}

// parseSingleAsset handles "<verb> <amount> <asset> [on <venue>]"
func (p *Parser) parseSingleAsset(action models.ActionType, fields []string) (models.ExecutionStep, error) {
	if len(fields) < 3 {
		return models.ExecutionStep{}, fmt.Errorf("%w: expected %q", ErrUnparsable, string(action)+" <amount> <asset>")
	}
	amount, err := parseAmount(fields[1])
	if err != nil {
		return models.ExecutionStep{}, err
	}
	venue, err := p.venueFor(action, fields[3:])
	if err != nil {
		return models.ExecutionStep{}, err
	}
	asset := p.assetAddress(fields[2])
	return models.ExecutionStep{
		Action:      action,
		Venue:       venue,
		InputAsset:  asset,
		OutputAsset: asset,
		Amount:      amount,
	}, nil
}

// venueFor resolves the venue address for an action, honoring an optional
// trailing "on <venue>" override. The override must name the venue that
// actually handles the action.
func (p *Parser) venueFor(action models.ActionType, rest []string) (common.Address, error) {
	handler, ok := p.venues.Lookup(action)
	if !ok {
		return common.Address{}, fmt.Errorf("no venue configured for action %q", action)
	}
	if len(rest) == 0 {
		return handler.Address(), nil
	}
	if len(rest) != 2 || rest[0] != "on" {
		return common.Address{}, fmt.Errorf("%w: trailing %q", ErrUnparsable, strings.Join(rest, " "))
	}
	named, ok := p.venues.ByName(rest[1])
	if !ok {
		return common.Address{}, fmt.Errorf("unknown venue %q", rest[1])
	}
	if named.Address() != handler.Address() {
		return common.Address{}, fmt.Errorf("venue %q does not handle action %q", rest[1], action)
	}
	return named.Address(), nil
}

// assetAddress resolves a symbol to its configured address. Unknown
// symbols derive a deterministic placeholder address so the same symbol
// always maps to the same asset.
func (p *Parser) assetAddress(symbol string) common.Address {
	sym := strings.ToUpper(symbol)
	if addr, ok := p.assets[sym]; ok {
		return addr
	}
	return common.BytesToAddress(crypto.Keccak256([]byte("asset:" + sym))[12:])
}

func parseAmount(field string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(field, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q is not an integer", ErrUnparsable, field)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %q must be positive", ErrUnparsable, field)
	}
	return amount, nil
}

// applySlippage derives the minimum acceptable output: the input amount
// reduced by the slippage floor in basis points
func applySlippage(amount *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(10000-bps))
	return out.Div(out, big.NewInt(10000))
}

func splitClauses(text string) []string {
	parts := strings.Split(strings.ToLower(text), " then ")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, " ,.")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EncodePlan serializes steps as the payload attached to a parsed intent
func EncodePlan(steps []models.ExecutionStep) ([]byte, error) {
	payload, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return payload, nil
}

// DecodePlan restores the steps from an intent payload
func DecodePlan(payload []byte) ([]models.ExecutionStep, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty plan payload: %w", models.ErrInvalidInput)
	}
	var steps []models.ExecutionStep
	if err := json.Unmarshal(payload, &steps); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return steps, nil
}
