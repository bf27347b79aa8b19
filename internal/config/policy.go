package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	dealers "omc-erp/internal/dealers/domain"
	pricing "omc-erp/internal/pricing/domain"
	uppf "omc-erp/internal/uppf/domain"
)

// Policy is the business policy file. Decimal values are quoted strings.
type Policy struct {
	Pricing PricingPolicy `yaml:"pricing"`
	Dealers DealerPolicy  `yaml:"dealers"`
	UPPF    UPPFPolicy    `yaml:"uppf"`
}

// PricingPolicy configures required components and ceilings.
type PricingPolicy struct {
	RequiredCodes []string                 `yaml:"required_codes"`
	SumEpsilon    string                   `yaml:"sum_epsilon"`
	Ceilings      map[string]string        `yaml:"ceilings"`
	Products      map[string]ProductPolicy `yaml:"products"`
	Overridable   []string                 `yaml:"overridable"`
}

// ProductPolicy overrides ceilings for one product.
type ProductPolicy struct {
	Ceilings map[string]string `yaml:"ceilings"`
}

// DealerPolicy configures settlements.
type DealerPolicy struct {
	DefaultMargins     map[string]string `yaml:"default_margins"`
	WithholdingTaxRate string            `yaml:"withholding_tax_rate"`
	ApprovalThreshold  string            `yaml:"approval_threshold"`
}

// UPPFPolicy configures claims.
type UPPFPolicy struct {
	DefaultTariff           string    `yaml:"default_tariff"`
	LargeClaimThreshold     string    `yaml:"large_claim_threshold"`
	ReconciliationTolerance string    `yaml:"reconciliation_tolerance"`
	GPS                     GPSPolicy `yaml:"gps"`
}

// GPSPolicy configures GPS checks.
type GPSPolicy struct {
	MinPoints        int     `yaml:"min_points"`
	MaxSpeedKmh      float64 `yaml:"max_speed_kmh"`
	SpeedingKmh      float64 `yaml:"speeding_kmh"`
	MaxGap           string  `yaml:"max_gap"`
	StopRadiusMeters float64 `yaml:"stop_radius_m"`
	StopDuration     string  `yaml:"stop_duration"`
	UnauthorizedStop string  `yaml:"unauthorized_stop"`
	RouteTolerance   float64 `yaml:"route_tolerance"`
}

// LoadPolicy reads the YAML policy file. An empty path yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	var p Policy
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("policy: %w", err)
	}
	if _, err := p.PricingPolicy(); err != nil {
		return p, err
	}
	if _, err := p.DealerPolicy(); err != nil {
		return p, err
	}
	if _, err := p.UPPFPolicy(); err != nil {
		return p, err
	}
	return p, nil
}

// PricingPolicy merges the file over the built-in pricing policy.
func (p Policy) PricingPolicy() (pricing.Policy, error) {
	out := pricing.DefaultPolicy()
	if len(p.Pricing.RequiredCodes) > 0 {
		out.RequiredCodes = append([]string(nil), p.Pricing.RequiredCodes...)
	}
	if len(p.Pricing.Overridable) > 0 {
		out.Overridable = append([]string(nil), p.Pricing.Overridable...)
	}
	if err := setDecimal(&out.SumEpsilon, p.Pricing.SumEpsilon, "pricing.sum_epsilon"); err != nil {
		return out, err
	}
	ceilings, err := parseDecimalMap(p.Pricing.Ceilings, "pricing.ceilings")
	if err != nil {
		return out, err
	}
	for code, v := range ceilings {
		out.Ceilings[code] = v
	}
	if len(p.Pricing.Products) > 0 {
		out.ProductCeilings = make(map[string]map[string]decimal.Decimal, len(p.Pricing.Products))
		for product, override := range p.Pricing.Products {
			parsed, err := parseDecimalMap(override.Ceilings, "pricing.products."+product)
			if err != nil {
				return out, err
			}
			out.ProductCeilings[product] = mergeCeilings(out.Ceilings, parsed)
		}
	}
	return out, nil
}

// DealerPolicy merges the file over the built-in settlement policy.
func (p Policy) DealerPolicy() (dealers.Policy, error) {
	out := dealers.DefaultPolicy()
	margins, err := parseDecimalMap(p.Dealers.DefaultMargins, "dealers.default_margins")
	if err != nil {
		return out, err
	}
	for product, v := range margins {
		out.DefaultMargins[product] = v
	}
	if err := setDecimal(&out.WithholdingTaxRate, p.Dealers.WithholdingTaxRate, "dealers.withholding_tax_rate"); err != nil {
		return out, err
	}
	if err := setDecimal(&out.ApprovalThreshold, p.Dealers.ApprovalThreshold, "dealers.approval_threshold"); err != nil {
		return out, err
	}
	return out, nil
}

// UPPFPolicy merges the file over the built-in UPPF policy.
func (p Policy) UPPFPolicy() (uppf.Policy, error) {
	out := uppf.DefaultPolicy()
	if err := setDecimal(&out.DefaultTariff, p.UPPF.DefaultTariff, "uppf.default_tariff"); err != nil {
		return out, err
	}
	if err := setDecimal(&out.LargeClaimThreshold, p.UPPF.LargeClaimThreshold, "uppf.large_claim_threshold"); err != nil {
		return out, err
	}
	if err := setDecimal(&out.ReconciliationTolerance, p.UPPF.ReconciliationTolerance, "uppf.reconciliation_tolerance"); err != nil {
		return out, err
	}
	gps := p.UPPF.GPS
	if gps.MinPoints != 0 {
		out.GPS.MinPoints = gps.MinPoints
	}
	if gps.MaxSpeedKmh != 0 {
		out.GPS.MaxSpeedKmh = gps.MaxSpeedKmh
	}
	if gps.SpeedingKmh != 0 {
		out.GPS.SpeedingKmh = gps.SpeedingKmh
	}
	if gps.StopRadiusMeters != 0 {
		out.GPS.StopRadiusMeters = gps.StopRadiusMeters
	}
	if gps.RouteTolerance != 0 {
		out.GPS.RouteTolerancePct = gps.RouteTolerance
	}
	for _, d := range []struct {
		dst   *time.Duration
		value string
		key   string
	}{
		{&out.GPS.MaxGap, gps.MaxGap, "uppf.gps.max_gap"},
		{&out.GPS.StopDuration, gps.StopDuration, "uppf.gps.stop_duration"},
		{&out.GPS.UnauthorizedStop, gps.UnauthorizedStop, "uppf.gps.unauthorized_stop"},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return out, fmt.Errorf("policy: %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return out, nil
}

func mergeCeilings(base, override map[string]decimal.Decimal) map[string]decimal.Decimal {
	merged := make(map[string]decimal.Decimal, len(base)+len(override))
	for code, v := range base {
		merged[code] = v
	}
	for code, v := range override {
		merged[code] = v
	}
	return merged
}

func setDecimal(dst *decimal.Decimal, value, key string) error {
	if value == "" {
		return nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("policy: %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func parseDecimalMap(values map[string]string, key string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(values))
	for k, v := range values {
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("policy: %s.%s: %w", key, k, err)
		}
		out[k] = parsed
	}
	return out, nil
}
