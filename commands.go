package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"omc-erp/internal/apperrors"
	dealers "omc-erp/internal/dealers/domain"
	pricingapp "omc-erp/internal/pricing/application"
	uppf "omc-erp/internal/uppf/domain"
)

const dateLayout = "2006-01-02"

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"window-create":      {"create a draft pricing window", windowCreate},
	"window-activate":    {"activate a draft window and close the active one", windowActivate},
	"price-window":       {"compute ex-pump prices for every station and product", priceWindow},
	"validate-price":     {"recompute and validate one station price", validatePrice},
	"import-template":    {"import an NPA price template workbook", importTemplate},
	"settle-window":      {"calculate dealer settlements for every active station", settleWindow},
	"settlement-approve": {"approve a calculated settlement", settlementApprove},
	"settlement-pay":     {"mark an approved settlement as paid", settlementPay},
	"claim-validate":     {"run the UPPF checks on a draft claim", claimValidate},
	"submit-claims":      {"batch ready UPPF claims of a window into an NPA submission", submitClaims},
	"notify-deadlines":   {"send NPA submission reminders and escalations that fell due", notifyDeadlines},
	"dispatch-outbox":    {"deliver pending outbox events", dispatchOutbox},

	"window-summary":     {"count and summarise the station prices of a window", windowSummary},
	"window-compare":     {"compare the effective component rates of two windows", windowCompare},
	"window-archive":     {"archive closed windows older than a number of days", windowArchive},
	"loan-disburse":      {"record a dealer loan and its installment schedule", loanDisburse},
	"dealer-performance": {"rate a dealer from its settlement history", dealerPerformance},
	"submission-submit":  {"mark a validated draft submission as sent to the NPA", submissionSubmit},
	"submission-ack":     {"record the NPA acknowledgement of a submission", submissionAck},
	"npa-response":       {"apply an NPA decision file to a submission", npaResponse},
}

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func required(fs *flag.FlagSet, names ...string) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for _, name := range names {
		if !set[name] {
			return fmt.Errorf("%s: -%s is required", fs.Name(), name)
		}
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want %s", value, dateLayout)
	}
	return t.UTC(), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func windowCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlags("window-create")
	start := fs.String("start", "", "first day of the window (YYYY-MM-DD)")
	end := fs.String("end", "", "window end (YYYY-MM-DD); defaults to fourteen days after start")
	ref := fs.String("ref", "", "NPA guideline reference")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "start"); err != nil {
		return err
	}
	in := pricingapp.WindowInput{GuidelineRef: *ref}
	var err error
	if in.Start, err = parseDate(*start); err != nil {
		return err
	}
	if in.End, err = parseDate(*end); err != nil {
		return err
	}
	window, err := a.windows.CreateWindow(ctx, in)
	if err != nil {
		return err
	}
	return printJSON(window)
}

func windowActivate(ctx context.Context, a *app, args []string) error {
	fs := newFlags("window-activate")
	id := fs.String("window", "", "window id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "window"); err != nil {
		return err
	}
	window, events, err := a.windows.ActivateWindow(ctx, *id)
	if err != nil {
		return err
	}
	a.publish(ctx, events)
	return printJSON(window)
}

type pairFailureView struct {
	StationID string `json:"station_id"`
	ProductID string `json:"product_id"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func priceWindow(ctx context.Context, a *app, args []string) error {
	fs := newFlags("price-window")
	id := fs.String("window", "", "window id")
	retry := fs.Bool("retry", true, "retry retryable pair failures once")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "window"); err != nil {
		return err
	}
	result, err := a.bulk.BulkCalculatePrices(ctx, *id)
	if err != nil {
		return err
	}
	a.publish(ctx, result.Events)
	if pairs := result.RetryablePairs(); *retry && len(pairs) > 0 {
		retried, err := a.bulk.RecalculatePairs(ctx, *id, pairs)
		if err != nil {
			return err
		}
		a.publish(ctx, retried.Events)
		result = mergeRetry(result, retried)
	}

	failures := make([]pairFailureView, 0, len(result.Failed))
	for _, f := range result.Failed {
		failures = append(failures, pairFailureView{
			StationID: f.Pair.StationID,
			ProductID: f.Pair.ProductID,
			Error:     errString(f.Err),
			Retryable: f.Retryable,
		})
	}
	return printJSON(map[string]any{
		"window_id": result.WindowID,
		"succeeded": len(result.Succeeded),
		"invalid":   result.Invalid,
		"failed":    failures,
	})
}

// mergeRetry replaces the retried failures of first with the outcome of the retry.
func mergeRetry(first, retried pricingapp.BulkResult) pricingapp.BulkResult {
	merged := pricingapp.BulkResult{WindowID: first.WindowID}
	merged.Succeeded = append(append(merged.Succeeded, first.Succeeded...), retried.Succeeded...)
	merged.Invalid = append(append(merged.Invalid, first.Invalid...), retried.Invalid...)
	for _, f := range first.Failed {
		if !f.Retryable {
			merged.Failed = append(merged.Failed, f)
		}
	}
	merged.Failed = append(merged.Failed, retried.Failed...)
	return merged
}

func validatePrice(ctx context.Context, a *app, args []string) error {
	fs := newFlags("validate-price")
	station := fs.String("station", "", "station id")
	product := fs.String("product", "", "product id")
	window := fs.String("window", "", "window id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "station", "product", "window"); err != nil {
		return err
	}
	result, err := a.validator.ValidatePriceCalculation(ctx, *station, *product, *window)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func importTemplate(ctx context.Context, a *app, args []string) error {
	fs := newFlags("import-template")
	window := fs.String("window", "", "window id the rates are published for")
	file := fs.String("file", "", "path to the NPA template workbook")
	validateOnly := fs.Bool("validate-only", false, "check the workbook without publishing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "window", "file"); err != nil {
		return err
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := a.importer.ImportTemplate(ctx, f, pricingapp.ImportOptions{
		WindowID:     *window,
		ValidateOnly: *validateOnly,
	})
	if len(result.Errors) > 0 {
		_ = printJSON(result.Errors)
	}
	if err != nil {
		return err
	}
	a.publish(ctx, result.Events)
	return printJSON(map[string]any{
		"window_id": result.WindowID,
		"rates":     len(result.Rates),
		"published": result.Published,
	})
}

type settlementView struct {
	ID               string         `json:"id"`
	SettlementNumber string         `json:"settlement_number"`
	StationID        string         `json:"station_id"`
	Status           dealers.Status `json:"status"`
	Version          int            `json:"version"`
	GrossMargin      string         `json:"gross_dealer_margin"`
	Deductions       string         `json:"total_deductions"`
	NetPayable       string         `json:"net_payable"`
}

func viewSettlement(s *dealers.Settlement) settlementView {
	return settlementView{
		ID:               s.ID,
		SettlementNumber: s.SettlementNumber,
		StationID:        s.StationID,
		Status:           s.Status,
		Version:          s.Version,
		GrossMargin:      s.GrossDealerMargin.StringFixed(2),
		Deductions:       s.TotalDeductions().StringFixed(2),
		NetPayable:       s.NetPayable().StringFixed(2),
	}
}

func settleWindow(ctx context.Context, a *app, args []string) error {
	fs := newFlags("settle-window")
	window := fs.String("window", "", "window id")
	from := fs.String("from", "", "period start (YYYY-MM-DD)")
	to := fs.String("to", "", "period end (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "window", "from", "to"); err != nil {
		return err
	}
	start, err := parseDate(*from)
	if err != nil {
		return err
	}
	end, err := parseDate(*to)
	if err != nil {
		return err
	}
	report, err := a.settlements.CalculateForWindow(ctx, *window, start, end)
	if err != nil {
		return err
	}
	a.publish(ctx, report.Events)

	views := make([]settlementView, 0, len(report.Settlements))
	for _, s := range report.Settlements {
		views = append(views, viewSettlement(s))
	}
	failed := make(map[string]string, len(report.Failed))
	for _, f := range report.Failed {
		failed[f.StationID] = errString(f.Err)
	}
	return printJSON(map[string]any{
		"window_id":   report.WindowID,
		"settlements": views,
		"failed":      failed,
	})
}

func settlementApprove(ctx context.Context, a *app, args []string) error {
	fs := newFlags("settlement-approve")
	id := fs.String("id", "", "settlement id")
	version := fs.Int("version", 0, "expected settlement version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "id", "version"); err != nil {
		return err
	}
	s, events, err := a.settlements.Approve(ctx, *id, *version)
	if err != nil {
		return err
	}
	a.publish(ctx, events)
	return printJSON(viewSettlement(s))
}

func settlementPay(ctx context.Context, a *app, args []string) error {
	fs := newFlags("settlement-pay")
	id := fs.String("id", "", "settlement id")
	version := fs.Int("version", 0, "expected settlement version")
	ref := fs.String("ref", "", "payment reference")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "id", "version", "ref"); err != nil {
		return err
	}
	s, events, err := a.settlements.MarkPaid(ctx, *id, *version, *ref)
	if err != nil {
		return err
	}
	a.publish(ctx, events)
	return printJSON(viewSettlement(s))
}

func claimValidate(ctx context.Context, a *app, args []string) error {
	fs := newFlags("claim-validate")
	id := fs.String("id", "", "claim id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "id"); err != nil {
		return err
	}
	claim, events, err := a.claims.ValidateClaim(ctx, *id)
	if err != nil {
		return err
	}
	a.publish(ctx, events)
	return printJSON(map[string]any{
		"claim_number": claim.ClaimNumber,
		"status":       claim.Status,
		"version":      claim.Version,
		"validation":   claim.Validation,
	})
}

type submissionView struct {
	ID          string                `json:"id"`
	Reference   string                `json:"reference"`
	WindowID    string                `json:"window_id"`
	Status      uppf.SubmissionStatus `json:"status"`
	Version     int                   `json:"version"`
	Claims      int                   `json:"claims"`
	TotalAmount string                `json:"total_amount"`
	TotalLitres string                `json:"total_litres"`
	Documents   []uppf.Document       `json:"documents"`
	Violations  []apperrors.Violation `json:"violations,omitempty"`
}

func viewSubmission(sub *uppf.Submission) submissionView {
	return submissionView{
		ID:          sub.ID,
		Reference:   sub.Reference,
		WindowID:    sub.WindowID,
		Status:      sub.Status,
		Version:     sub.Version,
		Claims:      len(sub.ClaimIDs),
		TotalAmount: sub.TotalAmount.StringFixed(2),
		TotalLitres: sub.TotalLitres.StringFixed(2),
		Documents:   sub.Documents,
		Violations:  sub.ValidationResults,
	}
}

func submitClaims(ctx context.Context, a *app, args []string) error {
	fs := newFlags("submit-claims")
	window := fs.String("window", "", "window id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "window"); err != nil {
		return err
	}
	sub, events, err := a.batcher.SubmitWindow(ctx, *window)
	a.publish(ctx, events)
	if sub != nil {
		if printErr := printJSON(viewSubmission(sub)); printErr != nil && err == nil {
			err = printErr
		}
	}
	if sub != nil && errors.Is(err, apperrors.ErrValidationFailed) {
		return fmt.Errorf("submission %s kept as draft: %w", sub.Reference, err)
	}
	return err
}

func notifyDeadlines(ctx context.Context, a *app, args []string) error {
	fs := newFlags("notify-deadlines")
	window := fs.String("window", "", "window id")
	lookback := fs.Duration("lookback", 24*time.Hour, "send actions that fell due within this period")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "window"); err != nil {
		return err
	}
	if a.notifier == nil {
		return errors.New("notify-deadlines: NOTIFY_WEBHOOK_URL is not configured")
	}
	status, err := a.batcher.DueActions(ctx, *window, time.Now().Add(-*lookback))
	if err != nil {
		return err
	}
	sent := 0
	for _, action := range status.Due {
		if err := a.notifier.NotifyDeadline(ctx, status.WindowID, status.Deadline, action); err != nil {
			return err
		}
		sent++
	}
	return printJSON(map[string]any{
		"window_id": status.WindowID,
		"deadline":  status.Deadline,
		"sent":      sent,
	})
}

func dispatchOutbox(ctx context.Context, a *app, args []string) error {
	fs := newFlags("dispatch-outbox")
	limit := fs.Int("limit", 100, "maximum records to deliver")
	if err := fs.Parse(args); err != nil {
		return err
	}
	result, err := a.dispatcher.Dispatch(ctx, *limit)
	if printErr := printJSON(result); printErr != nil && err == nil {
		err = printErr
	}
	return err
}
