package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MalithGihan/steelminer/internal/logging"
	"github.com/MalithGihan/steelminer/internal/quality"
)

// qualityLog is written next to the reports.
const qualityLog = "quality_checks.log"

var (
	datasetPath    string
	qualityOut     string
	rulesPath      string
	reviewResults  string
	updateRules    bool
	updatedDataset string
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Check a dataset, flag samples for manual review and apply review results",
	Long: `Runs range and consistency checks over a steel dataset and writes
quality_report.json, flagged_samples.json/.xlsx and manual_review_form.html
to the output directory.

With --review-results the decisions exported from the review form are
attached to the dataset, and with --update-rules approved temperatures
raise the tempering limit in the rules file.`,
	RunE: runQuality,
}

func addQualityFlags() {
	f := qualityCmd.Flags()
	f.StringVar(&datasetPath, "dataset", "", "Steel dataset JSON file (required)")
	f.StringVar(&qualityOut, "output-dir", "", "Directory for the quality reports (required)")
	f.StringVar(&rulesPath, "rules", "", "Quality rules file (default RULES_PATH)")
	f.StringVar(&reviewResults, "review-results", "", "Manual review results JSON to write back into the dataset")
	f.BoolVar(&updateRules, "update-rules", false, "Update the rules from approved review results")
	f.StringVar(&updatedDataset, "write-updated-dataset", "", "Write the reviewed dataset here instead of over --dataset")
	qualityCmd.MarkFlagRequired("dataset")
	qualityCmd.MarkFlagRequired("output-dir")
}

func runQuality(cmd *cobra.Command, args []string) error {
	log, err := logging.New(verbose, logFile, filepath.Join(qualityOut, qualityLog))
	if err != nil {
		return err
	}
	defer log.Sync()

	rules := rulesPath
	if rules == "" {
		rules = cfg.RulesPath
	}

	dataset, err := quality.LoadDataset(datasetPath)
	if err != nil {
		return err
	}
	limits, err := quality.LoadRules(rules)
	if err != nil {
		return err
	}
	res, err := quality.Audit(dataset, limits, qualityOut, time.Now())
	if err != nil {
		return err
	}
	log.Info("quality report saved", zap.String("path", res.ReportPath),
		zap.Int("records", res.Report.TotalRecords), zap.Int("flagged", len(res.Flagged)))
	for _, p := range res.Exported {
		log.Info("flagged samples exported", zap.String("path", p))
	}
	if res.FormPath != "" {
		log.Info("manual review form generated", zap.String("path", res.FormPath))
	} else {
		log.Info("no samples need manual review")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d records checked, %d flagged\n", res.Report.TotalRecords, len(res.Flagged))

	if reviewResults == "" {
		return nil
	}
	out, n, err := quality.ApplyReviews(datasetPath, reviewResults, updatedDataset)
	if err != nil {
		return err
	}
	log.Info("review results applied", zap.String("dataset", out), zap.Int("records", n))
	if updateRules {
		updated, err := quality.UpdateRules(reviewResults, rules)
		if err != nil {
			return err
		}
		log.Info("quality rules updated", zap.String("path", rules),
			zap.Float64("max_tempering_temperature", updated["max_tempering_temperature"]))
	}
	return nil
}
