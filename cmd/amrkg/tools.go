package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"amrkg/predictor"
)

func newFeaturizeCmd(a *app) *cobra.Command {
	var (
		fingerprint string
		column      string
		outputPath  string
	)
	cmd := &cobra.Command{
		Use:   "featurize FILE",
		Short: "Write fingerprints for a SMILES file as TSV",
		Long: `featurize computes the same fingerprints the predict command feeds to a
model and writes them as TSV (smiles, canonical_smiles, f0..fN), so training
code can use exactly the inference-time features.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := a.kind(fingerprint)
			if err != nil {
				return err
			}
			inputs, err := a.collectInputs(strings.TrimSpace(args[0]), "", column)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pipeline, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			records, errs, err := pipeline.Featurize(ctx, inputs, kind)
			if err != nil {
				return fmt.Errorf("featurize: %w", err)
			}
			for i, e := range errs {
				if e != nil {
					a.logger.Debug("structure dropped", zap.Int("index", i), zap.String("input", inputs[i]), zap.Error(e))
				}
			}

			width := pipeline.Generator().Length(kind)
			var rows int
			if outputPath == "" || outputPath == "-" {
				rows, err = predictor.WriteFeaturesTSV(cmd.OutOrStdout(), records, width)
			} else {
				rows, err = writeFeatureFile(outputPath, records, width)
			}
			if err != nil {
				return err
			}
			a.logger.Info("features written",
				zap.String("fingerprint", kind.String()),
				zap.Int("rows", rows),
				zap.Int("dropped", len(records)-rows))
			return nil
		},
	}
	cmd.Flags().StringVarP(&fingerprint, "fingerprint", "f", "", "Fingerprint kind (default from config)")
	cmd.Flags().StringVar(&column, "column", "", "Column name or #index holding SMILES in CSV/TSV input")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "-", "TSV file to write (- for STDOUT)")
	return cmd
}

func writeFeatureFile(path string, records []predictor.StructureRecord, width int) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create feature file: %w", err)
	}
	rows, err := predictor.WriteFeaturesTSV(f, records, width)
	if err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close feature file: %w", err)
	}
	return rows, nil
}

func newColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns FILE",
		Short: "Show the columns of a CSV/TSV file and the detected SMILES column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(args[0])
			meta, err := predictor.ReadInputFileMetadata(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(meta.Columns) == 0 {
				fmt.Fprintln(out, infoStyle.Render("no columns: input is read one SMILES per line"))
				return nil
			}
			for i, name := range meta.Columns {
				fmt.Fprintf(out, "#%d\t%s\n", i+1, name)
			}
			if meta.Suggested.SMILESColumn == "" {
				fmt.Fprintln(out, infoStyle.Render("no SMILES column detected; pass --column"))
				return nil
			}
			fmt.Fprintf(out, "smiles column: %s\n", labelStyle.Render(meta.Suggested.SMILESColumn))
			return nil
		},
	}
}

func newCanonCmd(a *app) *cobra.Command {
	var (
		inputPath string
		column    string
	)
	cmd := &cobra.Command{
		Use:   "canon [SMILES...]",
		Short: "Print canonical SMILES",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := a.collectInputs(strings.TrimSpace(inputPath), "", column)
			if err != nil {
				return err
			}
			inputs = append(inputs, args...)
			if len(inputs) == 0 {
				return errors.New("no SMILES supplied")
			}
			out := cmd.OutOrStdout()
			canonical, errs := predictor.NormalizeAll(inputs)
			failed := 0
			for i, raw := range inputs {
				if errs[i] != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", raw, errs[i])
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", raw, canonical[i])
			}
			if failed > 0 {
				a.logger.Debug("canonicalization failures", zap.Int("failed", failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inputPath, "file", "", "CSV/TSV/text file containing SMILES")
	cmd.Flags().StringVar(&column, "column", "", "Column name or #index holding SMILES in CSV/TSV input")
	return cmd
}

func newFingerprintCmd(a *app) *cobra.Command {
	var fingerprint string
	cmd := &cobra.Command{
		Use:   "fingerprint SMILES",
		Short: "Print the fingerprint of one structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := a.kind(fingerprint)
			if err != nil {
				return err
			}
			canonical, err := predictor.Normalize(args[0])
			if err != nil {
				return err
			}
			gen, err := a.generator()
			if err != nil {
				return err
			}
			vec, err := gen.Generate(canonical, kind)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s length=%d\n", canonical, kind, len(vec))
			fmt.Fprintln(out, formatVector(vec))
			return nil
		},
	}
	cmd.Flags().StringVarP(&fingerprint, "fingerprint", "f", "", "Fingerprint kind (default from config)")
	return cmd
}

// formatVector prints the on-bit indices of a binary vector, or every value
// otherwise.
func formatVector(vec predictor.FixedVector) string {
	binary := true
	for _, v := range vec {
		if v != 0 && v != 1 {
			binary = false
			break
		}
	}
	parts := make([]string, 0, len(vec))
	for i, v := range vec {
		if binary {
			if v == 1 {
				parts = append(parts, strconv.Itoa(i))
			}
			continue
		}
		parts = append(parts, strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	if binary {
		return "on bits: " + strings.Join(parts, ",")
	}
	return strings.Join(parts, ",")
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model artifacts in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := predictor.NewStore(ctx, a.cfg.Artifacts)
			if err != nil {
				return fmt.Errorf("open artifact store: %w", err)
			}
			keys, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("FINGERPRINT  MODEL"))
			found := 0
			for _, key := range keys {
				kind, model, ok := predictor.ParseArtifactKey(key)
				if !ok {
					continue
				}
				found++
				fmt.Fprintf(out, "%-12s %s\n", kind, model)
			}
			if found == 0 {
				fmt.Fprintln(out, infoStyle.Render("no model artifacts found"))
			}
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init PATH",
		Short: "Write a default configuration file (.json, .yaml or .yml)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(args[0])
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := predictor.SaveConfig(path, predictor.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
