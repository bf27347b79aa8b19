package application

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"omc-erp/internal/apperrors"
	pricing "omc-erp/internal/pricing/domain"
)

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

var templateHeader = []any{"Product", "Code", "Name", "Category", "Rate", "Unit", "Effective_From", "Effective_To"}

func newImporter(t *testing.T, f *fixture) *TemplateImporter {
	t.Helper()
	importer, err := NewTemplateImporter(f.windows, f.rates, testPolicy(), nil, fixedClock{fixedNow}, nil)
	require.NoError(t, err)
	return importer
}

func TestImportTemplatePublishesRates(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	ctx := context.Background()
	buf := workbook(t, [][]any{
		templateHeader,
		{"AGO", "EXREF", "Ex-refinery", "", "6.10", "GHS/L", "", ""},
		{"AGO", "OMC", "OMC margin", "omc_margin", "0.55", "", "", ""},
		{"AGO", "DEAL", "Dealer margin", "", "0.85", "", "", ""},
		{},
	})

	result, err := newImporter(t, f).ImportTemplate(ctx, buf, ImportOptions{WindowID: f.window.ID})
	require.NoError(t, err)
	assert.True(t, result.Published)
	assert.Len(t, result.Rates, 3)
	require.Len(t, result.Events, 1)

	rates, err := f.rates.ListEffective(ctx, "AGO", windowStart)
	require.NoError(t, err)
	assert.Len(t, rates, 3)
}

func TestImportTemplateCollectsEveryRowError(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	ctx := context.Background()
	buf := workbook(t, [][]any{
		templateHeader,
		{"LPG", "EXREF", "", "", "-1", "", "", ""},
		{"LPG", "XYZ", "", "", "0.10", "", "", ""},
		{"LPG", "OMC", "", "", "abc", "", "", ""},
		{"LPG", "DEAL", "", "", "0.30", "", "2025-02-01", ""},
	})

	importer := newImporter(t, f)
	issue := windowStart
	result, err := importer.ImportTemplate(ctx, buf, ImportOptions{WindowID: f.window.ID, IssueDate: issue})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))
	assert.False(t, result.Published)

	rules := map[string]int{}
	for _, v := range result.Errors {
		rules[v.Rule]++
	}
	assert.Equal(t, 3, rules[RuleTemplateRow])
	assert.Equal(t, 1, rules[RuleTemplateDate])

	rates, err := f.rates.ListEffective(ctx, "LPG", windowStart)
	require.NoError(t, err)
	assert.Empty(t, rates)
}

func TestImportTemplateRequiredComponents(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	buf := workbook(t, [][]any{
		templateHeader,
		{"DPK", "EXREF", "", "", "4.00", "", "", ""},
	})
	result, err := newImporter(t, f).ImportTemplate(context.Background(), buf, ImportOptions{WindowID: f.window.ID})
	require.Error(t, err)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, RuleTemplateRequired, result.Errors[0].Rule)
}

func TestImportTemplateValidateOnly(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	buf := workbook(t, [][]any{
		templateHeader,
		{"RFO", "EXREF", "", "", "3.00", "", "", ""},
		{"RFO", "OMC", "", "", "0.20", "", "", ""},
		{"RFO", "DEAL", "", "", "0.20", "", "", ""},
	})
	result, err := newImporter(t, f).ImportTemplate(context.Background(), buf, ImportOptions{WindowID: f.window.ID, ValidateOnly: true})
	require.NoError(t, err)
	assert.False(t, result.Published)
	assert.Len(t, result.Rates, 3)

	rates, _ := f.rates.ListEffective(context.Background(), "RFO", windowStart)
	assert.Empty(t, rates)
}
