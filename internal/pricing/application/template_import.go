package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/auth"
	pricing "omc-erp/internal/pricing/domain"
)

// Template rule identifiers.
const (
	RuleTemplateHeader   = "TEMPLATE_HEADER"
	RuleTemplateRow      = "TEMPLATE_ROW"
	RuleTemplateRequired = "TEMPLATE_REQUIRED_COMPONENT"
	RuleTemplateDate     = "TEMPLATE_EFFECTIVE_DATE"
)

const templateDateLayout = "2006-01-02"

var templateColumns = []string{"product", "code", "name", "category", "rate", "unit", "effective_from", "effective_to"}

// ImportOptions controls an NPA price template import.
type ImportOptions struct {
	WindowID     string `validate:"required"`
	ValidateOnly bool
	IssueDate    time.Time
}

// ImportResult lists the parsed rates and every row problem.
type ImportResult struct {
	WindowID  string
	Rates     []pricing.ComponentRate
	Errors    []apperrors.Violation
	Published bool
	Events    []any
}

// TemplateImporter publishes component rates from the NPA price template workbook.
type TemplateImporter struct {
	windows   pricing.WindowRepository
	publisher pricing.RatePublisher
	policy    pricing.Policy
	validate  *validator.Validate
	clock     Clock
	logger    *zap.Logger
}

// NewTemplateImporter constructs the importer.
func NewTemplateImporter(
	windows pricing.WindowRepository,
	publisher pricing.RatePublisher,
	policy pricing.Policy,
	validate *validator.Validate,
	clock Clock,
	logger *zap.Logger,
) (*TemplateImporter, error) {
	if windows == nil {
		return nil, errors.New("template importer: nil window repository")
	}
	if publisher == nil {
		return nil, errors.New("template importer: nil rate publisher")
	}
	if validate == nil {
		validate = validator.New()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateImporter{
		windows:   windows,
		publisher: publisher,
		policy:    policy,
		validate:  validate,
		clock:     clock,
		logger:    logger,
	}, nil
}

// ImportTemplate parses the first sheet and publishes its rates when every row is clean.
// Row problems are all collected; with errors present nothing is published and
// ValidationFailed is returned alongside the result.
func (s *TemplateImporter) ImportTemplate(ctx context.Context, r io.Reader, opts ImportOptions) (ImportResult, error) {
	if err := apperrors.ValidateStruct(s.validate, opts); err != nil {
		return ImportResult{}, err
	}
	if !opts.ValidateOnly {
		if err := auth.Authorize(ctx, auth.OpPublishRates); err != nil {
			return ImportResult{}, err
		}
	}
	window, err := s.windows.Get(ctx, opts.WindowID)
	if err != nil {
		return ImportResult{}, err
	}
	if window == nil {
		return ImportResult{}, apperrors.NotFound("pricing window", opts.WindowID)
	}
	if window.Status == pricing.WindowArchived {
		return ImportResult{}, apperrors.InvalidWindow(window.ID, string(window.Status))
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open template: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return ImportResult{}, fmt.Errorf("read template: %w", err)
	}

	result := ImportResult{WindowID: window.ID}
	result.Rates, result.Errors = s.parseRows(rows, window, opts.IssueDate)
	result.Errors = append(result.Errors, s.checkRequired(result.Rates)...)

	if len(result.Errors) > 0 {
		s.logger.Warn("price template rejected",
			zap.String("window_id", window.ID), zap.Int("rows", len(result.Rates)), zap.Int("errors", len(result.Errors)))
		return result, apperrors.ValidationFailed(result.Errors)
	}
	if opts.ValidateOnly {
		return result, nil
	}

	if err := s.publisher.Publish(ctx, result.Rates); err != nil {
		return result, err
	}
	result.Published = true
	result.Events = append(result.Events, pricing.ComponentRatesPublished{
		WindowID:   window.ID,
		Count:      len(result.Rates),
		OccurredAt: s.clock.Now().UTC(),
	})
	s.logger.Info("price template published", zap.String("window_id", window.ID), zap.Int("rates", len(result.Rates)))
	return result, nil
}

func (s *TemplateImporter) parseRows(rows [][]string, window *pricing.PricingWindow, issueDate time.Time) ([]pricing.ComponentRate, []apperrors.Violation) {
	if len(rows) == 0 {
		return nil, []apperrors.Violation{templateViolation(RuleTemplateHeader, "sheet", "template is empty")}
	}
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var violations []apperrors.Violation
	for _, col := range []string{"product", "code", "rate"} {
		if _, ok := index[col]; !ok {
			violations = append(violations, templateViolation(RuleTemplateHeader, col, "missing column "+col))
		}
	}
	if len(violations) > 0 {
		return nil, violations
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rates []pricing.ComponentRate
	for n, row := range rows[1:] {
		field := fmt.Sprintf("row %d", n+2)
		if isBlankRow(row) {
			continue
		}
		rate := pricing.ComponentRate{
			Code:          strings.ToUpper(cell(row, "code")),
			Name:          cell(row, "name"),
			ProductID:     strings.ToUpper(cell(row, "product")),
			WindowID:      window.ID,
			Unit:          cell(row, "unit"),
			EffectiveFrom: window.EffectiveDate(),
		}
		if rate.Unit == "" {
			rate.Unit = "GHS/L"
		}
		rowOK := true
		fail := func(rule, msg string) {
			violations = append(violations, templateViolation(rule, field, msg))
			rowOK = false
		}

		if category := strings.ToLower(cell(row, "category")); category != "" {
			rate.Category = pricing.Category(category)
		} else if implied, ok := pricing.CategoryForCode(rate.Code); ok {
			rate.Category = implied
		}
		if !rate.Category.Valid() {
			fail(RuleTemplateRow, fmt.Sprintf("unknown category for %s", rate.Code))
		}

		amount, err := decimal.NewFromString(cell(row, "rate"))
		switch {
		case err != nil:
			fail(RuleTemplateRow, fmt.Sprintf("unparsable rate %q", cell(row, "rate")))
		case amount.IsNegative():
			fail(RuleTemplateRow, fmt.Sprintf("negative rate %s for %s", amount.String(), rate.Code))
		default:
			rate.Rate = amount
		}

		if raw := cell(row, "effective_from"); raw != "" {
			t, err := time.Parse(templateDateLayout, raw)
			if err != nil {
				fail(RuleTemplateDate, fmt.Sprintf("bad effective_from %q", raw))
			} else {
				rate.EffectiveFrom = t.UTC()
			}
		}
		if raw := cell(row, "effective_to"); raw != "" {
			t, err := time.Parse(templateDateLayout, raw)
			if err != nil {
				fail(RuleTemplateDate, fmt.Sprintf("bad effective_to %q", raw))
			} else {
				t = t.UTC()
				rate.EffectiveTo = &t
			}
		}
		if !issueDate.IsZero() && rate.EffectiveFrom.Before(issueDate.UTC()) {
			fail(RuleTemplateDate, fmt.Sprintf("effective_from %s before issue date %s",
				rate.EffectiveFrom.Format(templateDateLayout), issueDate.UTC().Format(templateDateLayout)))
		}
		if rowOK {
			if err := rate.Validate(); err != nil {
				fail(RuleTemplateRow, err.Error())
			}
		}
		if rowOK {
			rates = append(rates, rate)
		}
	}
	return rates, violations
}

func (s *TemplateImporter) checkRequired(rates []pricing.ComponentRate) []apperrors.Violation {
	present := make(map[string]map[string]bool)
	for _, r := range rates {
		if present[r.ProductID] == nil {
			present[r.ProductID] = make(map[string]bool)
		}
		present[r.ProductID][r.Code] = true
	}
	products := make([]string, 0, len(present))
	for p := range present {
		products = append(products, p)
	}
	sort.Strings(products)

	var violations []apperrors.Violation
	for _, product := range products {
		for _, code := range s.policy.RequiredCodes {
			if !present[product][code] {
				violations = append(violations, templateViolation(RuleTemplateRequired, product,
					fmt.Sprintf("product %s missing required component %s", product, code)))
			}
		}
	}
	return violations
}

func templateViolation(rule, field, msg string) apperrors.Violation {
	return apperrors.Violation{Rule: rule, Field: field, Message: msg, Severity: apperrors.SeverityFail}
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
