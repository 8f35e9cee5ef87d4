package utils

import (
	"fmt"
	"sort"

	"instrument-rental-backend/internal/domain"
)

// PriceTier grants DiscountBP basis points off rentals of at least MinDays days.
type PriceTier struct {
	MinDays    int32 `yaml:"min_days" json:"days"`
	DiscountBP int64 `yaml:"discount_bp" json:"discountBp"`
}

// DefaultTiers is the standard duration discount table: 1, 3, 7, 14 and 30 days
// at 0%, 11%, 17%, 25% and 33%.
func DefaultTiers() []PriceTier {
	return []PriceTier{
		{MinDays: 1, DiscountBP: 0},
		{MinDays: 3, DiscountBP: 1100},
		{MinDays: 7, DiscountBP: 1700},
		{MinDays: 14, DiscountBP: 2500},
		{MinDays: 30, DiscountBP: 3300},
	}
}

// PriceCalculator maps a daily base price and a duration to a discounted total.
// All amounts are integer minor units.
type PriceCalculator struct {
	tiers []PriceTier
}

// RentalQuote is the full pricing breakdown for one line.
type RentalQuote struct {
	BasePerDayCents int64 `json:"basePerDayCents"`
	Days            int32 `json:"days"`
	Quantity        int32 `json:"quantity"`
	DiscountBP      int64 `json:"discountBp"`
	UnitTotalCents  int64 `json:"unitTotalCents"`
	TotalCents      int64 `json:"totalCents"`
	SavingsCents    int64 `json:"savingsCents"`
}

// RentalPeriod is one row of the product page price table.
type RentalPeriod struct {
	Days       int32 `json:"days"`
	DiscountBP int64 `json:"discountBp"`
	TotalCents int64 `json:"totalCents"`
}

// NewPriceCalculator validates the tier table. Tiers must start at one day,
// ascend strictly by days, and never lower the discount, so a longer rental
// never costs more per day than a shorter one.
func NewPriceCalculator(tiers []PriceTier) (*PriceCalculator, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: pricing tier table is empty", domain.ErrInvalidInput)
	}
	sorted := make([]PriceTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinDays < sorted[j].MinDays })

	if sorted[0].MinDays != 1 {
		return nil, fmt.Errorf("%w: first pricing tier must start at 1 day", domain.ErrInvalidInput)
	}
	for i, t := range sorted {
		if t.DiscountBP < 0 || t.DiscountBP >= 10000 {
			return nil, fmt.Errorf("%w: tier %d days has discount %d bp outside [0, 10000)", domain.ErrInvalidInput, t.MinDays, t.DiscountBP)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if t.MinDays == prev.MinDays {
			return nil, fmt.Errorf("%w: duplicate pricing tier for %d days", domain.ErrInvalidInput, t.MinDays)
		}
		if t.DiscountBP < prev.DiscountBP {
			return nil, fmt.Errorf("%w: discount for %d days is lower than for %d days", domain.ErrInvalidInput, t.MinDays, prev.MinDays)
		}
	}
	return &PriceCalculator{tiers: sorted}, nil
}

// MustPriceCalculator panics on an invalid table. Use for compiled-in tables.
func MustPriceCalculator(tiers []PriceTier) *PriceCalculator {
	c, err := NewPriceCalculator(tiers)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *PriceCalculator) Tiers() []PriceTier {
	out := make([]PriceTier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Discount returns the discount of the nearest breakpoint at or below days.
func (c *PriceCalculator) Discount(days int32) int64 {
	var bp int64
	for _, t := range c.tiers {
		if t.MinDays > days {
			break
		}
		bp = t.DiscountBP
	}
	return bp
}

// Price returns round_half_up(base * days * (1 - discount)).
func (c *PriceCalculator) Price(basePerDayCents int64, days int32) (int64, error) {
	if basePerDayCents < 0 {
		return 0, fmt.Errorf("%w: base price must not be negative", domain.ErrInvalidInput)
	}
	if days <= 0 {
		return 0, fmt.Errorf("%w: rental days must be positive", domain.ErrInvalidInput)
	}
	gross := basePerDayCents * int64(days)
	return applyDiscount(gross, c.Discount(days)), nil
}

// Quote prices quantity units for days days and reports the savings
// against the undiscounted price.
func (c *PriceCalculator) Quote(basePerDayCents int64, days, quantity int32) (*RentalQuote, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}
	unit, err := c.Price(basePerDayCents, days)
	if err != nil {
		return nil, err
	}
	q := int64(quantity)
	savings := basePerDayCents*int64(days)*q - unit*q
	if savings < 0 {
		savings = 0
	}
	return &RentalQuote{
		BasePerDayCents: basePerDayCents,
		Days:            days,
		Quantity:        quantity,
		DiscountBP:      c.Discount(days),
		UnitTotalCents:  unit,
		TotalCents:      unit * q,
		SavingsCents:    savings,
	}, nil
}

// Periods lists the price of each tier breakpoint for the given base price.
func (c *PriceCalculator) Periods(basePerDayCents int64) ([]RentalPeriod, error) {
	periods := make([]RentalPeriod, 0, len(c.tiers))
	for _, t := range c.tiers {
		total, err := c.Price(basePerDayCents, t.MinDays)
		if err != nil {
			return nil, err
		}
		periods = append(periods, RentalPeriod{Days: t.MinDays, DiscountBP: t.DiscountBP, TotalCents: total})
	}
	return periods, nil
}

// ApplyRate returns round_half_up(amount * bp / 10000). Used for tax and deposit.
func ApplyRate(amountCents, bp int64) int64 {
	return (amountCents*bp + 5000) / 10000
}

func applyDiscount(gross, bp int64) int64 {
	return (gross*(10000-bp) + 5000) / 10000
}
