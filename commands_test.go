package main

import (
	"bytes"
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pricingapp "omc-erp/internal/pricing/application"
	pricing "omc-erp/internal/pricing/domain"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	assert.Equal(t, 2, run(nil))
	assert.Equal(t, 2, run([]string{"no-such-command"}))
}

func TestUsageExplainsSystemCaller(t *testing.T) {
	var out bytes.Buffer
	fs := flag.NewFlagSet("omc-erp", flag.ContinueOnError)
	fs.SetOutput(&out)
	usage(fs)

	assert.Contains(t, out.String(), systemCallerNote)
	assert.Contains(t, out.String(), "settle-window")
}

func TestCommandsHaveSummaries(t *testing.T) {
	for name, cmd := range commands {
		assert.NotEmpty(t, cmd.summary, name)
		assert.NotNil(t, cmd.run, name)
	}
}

func TestRequiredFlags(t *testing.T) {
	fs := newFlags("settlement-pay")
	fs.String("id", "", "")
	fs.String("ref", "", "")
	require.NoError(t, fs.Parse([]string{"-id", "s-1"}))

	assert.NoError(t, required(fs, "id"))
	assert.EqualError(t, required(fs, "id", "ref"), "settlement-pay: -ref is required")
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = parseDate("01/03/2025")
	assert.Error(t, err)
}

func TestMergeRetryReplacesRetriedFailures(t *testing.T) {
	s1 := pricing.PairKey{StationID: "S1", ProductID: "PMS"}
	s2 := pricing.PairKey{StationID: "S2", ProductID: "PMS"}
	s3 := pricing.PairKey{StationID: "S3", ProductID: "AGO"}
	first := pricingapp.BulkResult{
		WindowID:  "2025-W05",
		Succeeded: []pricing.PairKey{s1},
		Failed: []pricingapp.PairFailure{
			{Pair: s2, Err: errors.New("timeout"), Retryable: true},
			{Pair: s3, Err: errors.New("component not found")},
		},
	}
	retried := pricingapp.BulkResult{WindowID: "2025-W05", Succeeded: []pricing.PairKey{s2}}

	merged := mergeRetry(first, retried)
	assert.Equal(t, []pricing.PairKey{s1, s2}, merged.Succeeded)
	require.Len(t, merged.Failed, 1)
	assert.Equal(t, s3, merged.Failed[0].Pair)
}
