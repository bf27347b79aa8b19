package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	dealerapp "omc-erp/internal/dealers/application"
	uppfapp "omc-erp/internal/uppf/application"
)

func windowSummary(ctx context.Context, a *app, args []string) error {
	fs := newFlags("window-summary")
	id := fs.String("window", "", "window id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "window"); err != nil {
		return err
	}
	report, err := a.windows.WindowSummary(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func windowCompare(ctx context.Context, a *app, args []string) error {
	fs := newFlags("window-compare")
	product := fs.String("product", "", "product id")
	from := fs.String("from", "", "earlier window id")
	to := fs.String("to", "", "later window id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "product", "from", "to"); err != nil {
		return err
	}
	cmp, err := a.windows.CompareWindows(ctx, *product, *from, *to)
	if err != nil {
		return err
	}
	return printJSON(cmp)
}

func windowArchive(ctx context.Context, a *app, args []string) error {
	fs := newFlags("window-archive")
	days := fs.Int("days", 0, "archive windows that ended more than this many days ago (default 365)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	archived, err := a.windows.ArchiveOlderThan(ctx, *days)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"archived": archived})
}

func loanDisburse(ctx context.Context, a *app, args []string) error {
	fs := newFlags("loan-disburse")
	station := fs.String("station", "", "station id")
	principal := fs.String("principal", "", "principal in GHS")
	rate := fs.String("rate", "0", "annual interest rate in percent")
	months := fs.Int("months", 0, "term in months")
	firstDue := fs.String("first-due", "", "first installment date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "station", "principal", "months", "first-due"); err != nil {
		return err
	}
	in := dealerapp.LoanInput{StationID: *station, TermMonths: *months}
	var err error
	if in.Principal, err = decimal.NewFromString(*principal); err != nil {
		return fmt.Errorf("principal %q: %w", *principal, err)
	}
	if in.AnnualRatePct, err = decimal.NewFromString(*rate); err != nil {
		return fmt.Errorf("rate %q: %w", *rate, err)
	}
	if in.FirstDueDate, err = parseDate(*firstDue); err != nil {
		return err
	}
	loan, events, err := a.loans.DisburseLoan(ctx, in)
	if err != nil {
		return err
	}
	a.publish(ctx, events)
	return printJSON(loan)
}

func dealerPerformance(ctx context.Context, a *app, args []string) error {
	fs := newFlags("dealer-performance")
	station := fs.String("station", "", "station id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "station"); err != nil {
		return err
	}
	perf, err := a.settlements.DealerPerformance(ctx, *station)
	if err != nil {
		return err
	}
	return printJSON(perf)
}

func submissionSubmit(ctx context.Context, a *app, args []string) error {
	fs := newFlags("submission-submit")
	id := fs.String("id", "", "submission id")
	version := fs.Int("version", 0, "expected submission version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "id", "version"); err != nil {
		return err
	}
	sub, events, err := a.batcher.MarkSubmitted(ctx, *id, *version)
	if err != nil {
		return err
	}
	a.publish(ctx, events)
	return printJSON(viewSubmission(sub))
}

func submissionAck(ctx context.Context, a *app, args []string) error {
	fs := newFlags("submission-ack")
	id := fs.String("id", "", "submission id")
	version := fs.Int("version", 0, "expected submission version")
	ref := fs.String("ref", "", "NPA receipt reference")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "id", "version", "ref"); err != nil {
		return err
	}
	sub, events, err := a.batcher.RecordAcknowledgement(ctx, *id, *version, *ref)
	if err != nil {
		return err
	}
	a.publish(ctx, events)
	return printJSON(viewSubmission(sub))
}

// npaResponse reads {"status": ..., "decisions": [...], "note": ...} from -file.
func npaResponse(ctx context.Context, a *app, args []string) error {
	fs := newFlags("npa-response")
	id := fs.String("id", "", "submission id")
	version := fs.Int("version", 0, "expected submission version")
	file := fs.String("file", "", "path to the NPA decision JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "id", "version", "file"); err != nil {
		return err
	}
	raw, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var resp uppfapp.NPAResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("npa-response: %s: %w", *file, err)
	}
	sub, events, err := a.batcher.ProcessNPAResponse(ctx, *id, *version, resp)
	if err != nil {
		return err
	}
	a.publish(ctx, events)
	return printJSON(viewSubmission(sub))
}
