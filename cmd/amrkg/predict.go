package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"amrkg/predictor"
)

type predictOptions struct {
	text        string
	fingerprint string
	model       string
	column      string
	outputPath  string
	outputDir   string
	stdout      bool
}

func newPredictCmd(a *app) *cobra.Command {
	var opts predictOptions
	cmd := &cobra.Command{
		Use:   "predict [FILE]",
		Short: "Predict activity for SMILES in a CSV/TSV/text file or inline text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath := ""
			if len(args) == 1 {
				inputPath = strings.TrimSpace(args[0])
			}
			return a.runPredict(cmd, inputPath, opts)
		},
	}
	cmd.Flags().StringVar(&opts.text, "text", "", "SMILES separated by newlines, commas or semicolons")
	cmd.Flags().StringVarP(&opts.fingerprint, "fingerprint", "f", "", "Fingerprint kind: ECFP4, RDKit, MACCS, MHFP6 or ErG (default from config)")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model name (default from config)")
	cmd.Flags().StringVar(&opts.column, "column", "", "Column name or #index holding SMILES in CSV/TSV input")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "CSV file to write results (default uses --output-dir/result_*.csv)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "csv", "Directory where result CSVs are written when --output is omitted")
	cmd.Flags().BoolVar(&opts.stdout, "stdout", false, "Print a result preview to STDOUT")
	return cmd
}

func (a *app) runPredict(cmd *cobra.Command, inputPath string, opts predictOptions) error {
	kind, err := a.kind(opts.fingerprint)
	if err != nil {
		return err
	}
	model := a.model(opts.model)

	inputs, err := a.collectInputs(inputPath, opts.text, opts.column)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.New("no SMILES supplied: pass a file or --text")
	}

	ctx := cmd.Context()
	pipeline, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	started := time.Now()
	results, dropped, err := pipeline.Run(ctx, inputs, kind, model)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	a.logger.Info("prediction finished",
		zap.String("fingerprint", kind.String()),
		zap.String("model", model),
		zap.Int("inputs", len(inputs)),
		zap.Int("dropped", dropped),
		zap.Duration("elapsed", time.Since(started)))

	outputPath, err := resolveOutputPath(strings.TrimSpace(opts.outputPath), strings.TrimSpace(opts.outputDir))
	if err != nil {
		return err
	}
	if err := writeResultCSV(outputPath, results); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "wrote %d predictions to %s (%d dropped)\n", len(results), outputPath, dropped)
	if opts.stdout {
		printSummary(out, kind, model, results, dropped)
	}
	return nil
}

// collectInputs merges SMILES from an input file and inline text, file first.
func (a *app) collectInputs(path, text, column string) ([]string, error) {
	var inputs []string
	if path != "" {
		column = strings.TrimSpace(column)
		if column == "" {
			meta, err := predictor.ReadInputFileMetadata(path)
			if err != nil {
				return nil, fmt.Errorf("read input: %w", err)
			}
			if meta.Suggested.SMILESColumn != "" {
				a.logger.Info("detected SMILES column",
					zap.String("file", path),
					zap.String("column", meta.Suggested.SMILESColumn))
			}
		}
		parsed, err := predictor.ParseSMILESFileWithOptions(path, predictor.InputParseOptions{SMILESColumn: column})
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		inputs = append(inputs, parsed...)
	}
	inputs = append(inputs, predictor.ParseSMILESText(text)...)
	return inputs, nil
}

func resolveOutputPath(path, dir string) (string, error) {
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return absPath, nil
	}
	if dir == "" {
		dir = "csv"
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	filename := fmt.Sprintf("result_%s.csv", time.Now().Format("20060102150405"))
	return filepath.Join(absDir, filename), nil
}

func writeResultCSV(path string, results []predictor.PredictionResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	if err := predictor.WriteResultsCSV(f, results); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close result file: %w", err)
	}
	return nil
}
