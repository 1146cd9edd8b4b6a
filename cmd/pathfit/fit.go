package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/born-ml/pathfit/elasticnet"
)

func loadConfig(filename string) (elasticnet.Config, error) {
	if filename == "" {
		return elasticnet.DefaultConfig(), nil
	}
	return elasticnet.LoadConfig(filename)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runFit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fit", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	trainPath := fs.String("train", "", "training CSV, target in the last column")
	validPath := fs.String("valid", "", "validation CSV, target in the last column")
	header := fs.Bool("header", false, "skip the first CSV row")
	precision := fs.String("precision", "float64", "float32 or float64")
	full := fs.Bool("full", false, "keep every (lambda, alpha) record")
	out := fs.String("out", "model.enp", "model file to write")
	verbose := fs.Bool("v", false, "log progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *trainPath == "" {
		return errors.New("-train is required")
	}
	if *precision != "float32" && *precision != "float64" {
		return fmt.Errorf("unknown precision %q", *precision)
	}
	in := inputs{single: *precision == "float32"}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *full {
		cfg.GiveFullPath = true
	}

	train, err := readTable(*trainPath, *header)
	if err != nil {
		return err
	}
	trainX, trainY := train.split()
	ds := elasticnet.Dataset{TrainX: in.matrix(trainX), TrainY: in.vector(trainY)}
	if *validPath != "" {
		valid, err := readTable(*validPath, *header)
		if err != nil {
			return err
		}
		validX, validY := valid.split()
		ds.ValidX, ds.ValidY = in.matrix(validX), in.vector(validY)
	}

	s, err := elasticnet.New(cfg, elasticnet.WithLogger(newLogger(*verbose)))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	model, err := s.Fit(context.Background(), ds, cfg.GiveFullPath)
	if err != nil {
		return err
	}
	if err := s.SaveModel(*out); err != nil {
		return err
	}

	if in.single {
		err = summarize[float32](stdout, model)
	} else {
		err = summarize[float64](stdout, model)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nsession %s: model written to %s\n", s.ID(), *out)
	return nil
}

// summarize prints the best record of every alpha.
func summarize[T float32 | float64](w io.Writer, model *elasticnet.PathResult) error {
	v, err := elasticnet.ViewsOf[T](model)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "alpha\tlambda\ttrain_rmse\tcv_rmse\tvalid_rmse\tnonzero\ttol\t")
	for a := range v.NAlphas {
		row := v.Best(a)
		rmse := v.RMSE(row, a)
		nonzero := 0
		for _, c := range v.Coefficients(row, a) {
			if c != 0 {
				nonzero++
			}
		}
		fmt.Fprintf(tw, "%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%d\t%.2g\t\n",
			v.Alpha(row, a), v.Lambda(row, a),
			rmse[elasticnet.FieldTrainRMSE], rmse[elasticnet.FieldCVRMSE], rmse[elasticnet.FieldValidRMSE],
			nonzero, v.Tol(row, a))
	}
	return tw.Flush()
}
