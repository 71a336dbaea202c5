/*
Package product provides the loan product catalog consumed by the engine.

PURPOSE:
  Converts JSON product definitions into schedule calculators and product
  rules. Product managers define products in JSON; the catalog creates
  the proper Go collaborators - no code change per product.

JSON SCHEMA:
  {
    "code": "standard-monthly",
    "name": "Standard Monthly Installment",
    "repayment_method": "equal_installment",
    "allow_overpayment": true,
    "penalty_annual_rate": "0.08",
    "allocation_order": "oldest_due_first",
    "delinquency_bands": [
      {"name": "RANGE_1", "min_days": 1, "max_days": 29},
      {"name": "RANGE_30", "min_days": 30}
    ]
  }

DEFAULTS:
  Missing bands fall back to the standard 1/30/60/90 set; missing
  allocation order falls back to oldest-due-first; penalty rate defaults
  to zero (no accrual step).

SEE ALSO:
  - calculators.go: The calculator implementations behind the codes
  - servicing/schedule.go: The ProductCatalog interface this satisfies
*/
package product

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-servicing/servicing"
)

// ErrProductNotFound is returned when an account references a product
// code the catalog doesn't know.
var ErrProductNotFound = errors.New("product not registered")

// =============================================================================
// DEFINITION
// =============================================================================

type RepaymentMethod string

const (
	MethodEqualInstallment RepaymentMethod = "equal_installment"
	MethodEqualPrincipal   RepaymentMethod = "equal_principal"
)

type Definition struct {
	Code              string
	Name              string
	Method            RepaymentMethod
	AllowOverpayment  bool
	PenaltyAnnualRate decimal.Decimal
	AllocationOrder   servicing.AllocationOrder
	Bands             servicing.DelinquencyBands
}

// =============================================================================
// CATALOG - implements servicing.ProductCatalog
// =============================================================================

type Catalog struct {
	mu       sync.RWMutex
	products map[string]Definition
}

func NewCatalog() *Catalog {
	return &Catalog{products: make(map[string]Definition)}
}

// Register adds or replaces a product definition.
func (c *Catalog) Register(def Definition) error {
	if def.Code == "" {
		return &servicing.ValidationFailure{Code: "missing_product_code", Message: "product code is required"}
	}
	switch def.Method {
	case MethodEqualInstallment, MethodEqualPrincipal:
	default:
		return &servicing.ValidationFailure{Code: "unknown_repayment_method", Message: string(def.Method)}
	}
	if def.AllocationOrder == "" {
		def.AllocationOrder = servicing.AllocateOldestDueFirst
	}
	if len(def.Bands) == 0 {
		def.Bands = servicing.DefaultBands()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[def.Code] = def
	return nil
}

func (c *Catalog) CalculatorFor(code string) (servicing.ScheduleCalculator, error) {
	def, err := c.get(code)
	if err != nil {
		return nil, err
	}
	switch def.Method {
	case MethodEqualPrincipal:
		return &EqualPrincipalCalculator{def: def}, nil
	default:
		return &AnnuityCalculator{def: def}, nil
	}
}

func (c *Catalog) RulesFor(code string) (servicing.ProductRules, error) {
	def, err := c.get(code)
	if err != nil {
		return servicing.ProductRules{}, err
	}
	return servicing.ProductRules{
		AllowOverpayment: def.AllowOverpayment,
		Bands:            def.Bands,
	}, nil
}

func (c *Catalog) get(code string) (Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.products[code]
	if !ok {
		return Definition{}, fmt.Errorf("product %q: %w", code, ErrProductNotFound)
	}
	return def, nil
}

// =============================================================================
// JSON PARSING
// =============================================================================

type definitionJSON struct {
	Code              string     `json:"code"`
	Name              string     `json:"name"`
	RepaymentMethod   string     `json:"repayment_method"`
	AllowOverpayment  bool       `json:"allow_overpayment"`
	PenaltyAnnualRate string     `json:"penalty_annual_rate,omitempty"`
	AllocationOrder   string     `json:"allocation_order,omitempty"`
	DelinquencyBands  []bandJSON `json:"delinquency_bands,omitempty"`
}

type bandJSON struct {
	Name    string `json:"name"`
	MinDays int    `json:"min_days"`
	MaxDays *int   `json:"max_days,omitempty"`
}

// ParseDefinition converts a JSON product config into a Definition with
// defaults applied.
func ParseDefinition(raw string) (Definition, error) {
	var j definitionJSON
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return Definition{}, fmt.Errorf("invalid product JSON: %w", err)
	}

	def := Definition{
		Code:             j.Code,
		Name:             j.Name,
		Method:           RepaymentMethod(j.RepaymentMethod),
		AllowOverpayment: j.AllowOverpayment,
		AllocationOrder:  servicing.AllocationOrder(j.AllocationOrder),
	}
	if j.PenaltyAnnualRate != "" {
		rate, err := decimal.NewFromString(j.PenaltyAnnualRate)
		if err != nil {
			return Definition{}, fmt.Errorf("invalid penalty rate %q: %w", j.PenaltyAnnualRate, err)
		}
		def.PenaltyAnnualRate = rate
	}
	for _, b := range j.DelinquencyBands {
		def.Bands = append(def.Bands, servicing.DelinquencyBand{
			Name: b.Name, MinDays: b.MinDays, MaxDays: b.MaxDays,
		})
	}
	return def, nil
}

// RegisterJSON parses and registers in one step.
func (c *Catalog) RegisterJSON(raw string) error {
	def, err := ParseDefinition(raw)
	if err != nil {
		return err
	}
	return c.Register(def)
}

// StandardMonthly is the stock product used by dev setups and tests.
func StandardMonthly(code string, allowOverpayment bool) Definition {
	return Definition{
		Code:             code,
		Name:             "Standard Monthly Installment",
		Method:           MethodEqualInstallment,
		AllowOverpayment: allowOverpayment,
	}
}
