package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/godilite/churnradar/internal/app"
	"github.com/godilite/churnradar/internal/repository/models"
	"github.com/godilite/churnradar/internal/service"
	"github.com/godilite/churnradar/internal/signature"
)

var errUsage = errors.New("usage")

func run(ctx context.Context, application *app.App, command string, args []string, out io.Writer) error {
	switch command {
	case "match":
		report, err := application.Service().RunMatching(ctx)
		if err != nil {
			return err
		}
		printMatchReport(out, report)

	case "link":
		if len(args) != 2 {
			return fmt.Errorf("%w: link <account-id> <org-id>", errUsage)
		}
		if err := application.Service().SetManualLink(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Linked %s -> %s (manual)\n", args[0], args[1])

	case "heuristic":
		report, err := application.Heuristic(ctx)
		if err != nil {
			return err
		}
		printHeuristicReport(out, report)

	case "signature":
		fs := flag.NewFlagSet("signature", flag.ContinueOnError)
		window := fs.Int("window", 0, "Window in days (default from WINDOW_DAYS)")
		rebuild := fs.Bool("rebuild", false, "Rebuild even when a fresh signature exists")
		validate := fs.Bool("validate", false, "Run leave-one-out validation")
		if err := fs.Parse(args); err != nil {
			return err
		}
		report, err := application.Signature(ctx, *window, service.SignatureOptions{Rebuild: *rebuild, Validate: *validate})
		if err != nil {
			return err
		}
		printSignatureReport(out, report)

	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		window := fs.Int("window", 0, "Window in days (default from WINDOW_DAYS)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		report, err := application.Service().CrossValidate(ctx, *window)
		if errors.Is(err, signature.ErrInsufficientData) {
			fmt.Fprintf(out, "Cross-validation: %v\n", err)
			return nil
		}
		if err != nil {
			return err
		}
		printValidation(out, report)

	case "analyze":
		result, err := application.Analyze(ctx)
		if err != nil {
			return err
		}
		printMatchReport(out, result.Matching)
		fmt.Fprintln(out)
		printSignatureReport(out, result.Signature)
		if result.Signature.Heuristic == nil {
			fmt.Fprintln(out)
			printHeuristicReport(out, result.Heuristic)
		}

	case "serve":
		return application.Serve(ctx)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
	return nil
}

func printMatchReport(out io.Writer, r *service.MatchReport) {
	fmt.Fprintf(out, "Matching: %d high confidence, %d needs review, %d unmatched, %d already confirmed\n",
		len(r.HighConfidence), len(r.NeedsReview), len(r.Unmatched), r.Skipped)

	review := append(append([]service.MatchDetail{}, r.NeedsReview...), r.Unmatched...)
	if len(review) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ACCOUNT\tCANDIDATE\tSCORE\tMETHOD")
	_, _ = fmt.Fprintln(w, "-------\t---------\t-----\t------")
	for _, d := range review {
		candidate := d.OrganizationName
		if candidate == "" {
			candidate = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", d.AccountName, candidate, d.Score, d.Method)
	}
	_ = w.Flush()
}

func printLevelCounts(out io.Writer, counts map[string]int) {
	fmt.Fprintf(out, "critical=%d high=%d medium=%d low=%d\n",
		counts[models.RiskCritical], counts[models.RiskHigh], counts[models.RiskMedium], counts[models.RiskLow])
}

func printHeuristicReport(out io.Writer, r *service.HeuristicReport) {
	fmt.Fprintf(out, "Heuristic risk: %d accounts, ", len(r.Scores))
	printLevelCounts(out, r.CountsByLevel)

	levels := make([]string, 0, len(r.ValueAtRisk))
	for level := range r.ValueAtRisk {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	for _, level := range levels {
		fmt.Fprintf(out, "  value at risk (%s): %s\n", level, r.ValueAtRisk[level].StringFixed(2))
	}

	if len(r.Scores) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ACCOUNT\tSCORE\tLEVEL\t30D\t90D\tOPEN\tFACTORS")
	_, _ = fmt.Fprintln(w, "-------\t-----\t-----\t---\t---\t----\t-------")
	for _, rs := range r.Scores {
		factors := strings.Join(rs.RiskFactors, "; ")
		if factors == "" {
			factors = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%s\t%d\t%d\t%d\t%s\n",
			rs.AccountID, rs.Overall, rs.RiskLevel, rs.Tickets30d, rs.Tickets90d, rs.OpenTickets, factors)
	}
	_ = w.Flush()
}

func printSignatureReport(out io.Writer, r *service.SignatureReport) {
	if r.Skipped {
		fmt.Fprintf(out, "Signature analysis skipped: %s\n", r.Reason)
		if r.Heuristic != nil {
			fmt.Fprintln(out)
			printHeuristicReport(out, r.Heuristic)
		}
		return
	}

	state := "reused"
	if r.Rebuilt {
		state = "built"
	}
	fmt.Fprintf(out, "Signature %s (%s): window %dd, %d churned, %d active, %d without tickets\n",
		r.Signature.ID.String()[:8], state, r.WindowDays, r.Signature.ChurnedCount, r.Signature.ActiveCount, r.Unscored)

	features := append([]models.SignatureFeature{}, r.Signature.Features...)
	sort.SliceStable(features, func(i, j int) bool { return features[i].Weight > features[j].Weight })
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FEATURE\tWEIGHT\tSEPARATION\tCHURNED\tACTIVE\tDIRECTION")
	_, _ = fmt.Fprintln(w, "-------\t------\t----------\t-------\t------\t---------")
	for _, f := range features {
		_, _ = fmt.Fprintf(w, "%s\t%.3f\t%.2f\t%.2f\t%.2f\t%s\n",
			f.Name, f.Weight, f.Separation, f.ChurnedMean, f.ActiveMean, f.Direction)
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nPredictions: %d accounts, ", len(r.Predictions))
	printLevelCounts(out, r.CountsByLevel)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ACCOUNT\tSCORE\tLEVEL\tCONFIDENCE\tSIGNALS")
	_, _ = fmt.Fprintln(w, "-------\t-----\t-----\t----------\t-------")
	for _, p := range r.Predictions {
		signals := make([]string, 0, len(p.MatchedSignals))
		for _, s := range p.MatchedSignals {
			signals = append(signals, s.Feature)
		}
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\t%s\n",
			p.AccountID, p.Score, p.RiskLevel, p.Confidence, strings.Join(signals, ","))
	}
	_ = w.Flush()

	if r.Validation != nil {
		fmt.Fprintln(out)
		printValidation(out, r.Validation)
	}
}

func printValidation(out io.Writer, v *signature.ValidationReport) {
	fmt.Fprintf(out, "Cross-validation (%d holdouts): recall %.1f%%, precision %.1f%%, F1 %.1f (TP=%d FN=%d FP=%d)\n",
		v.Holdouts, v.Recall, v.Precision, v.F1, v.TruePositives, v.FalseNegatives, v.FalsePositives)
	for _, m := range v.Missed {
		fmt.Fprintf(out, "  missed %s: score %.1f (%s)\n", m.AccountID, m.Score, m.RiskLevel)
	}
}
