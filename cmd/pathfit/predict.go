package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/pathfit/elasticnet"
)

func runPredict(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file used for fitting")
	modelPath := fs.String("model", "model.enp", "model file")
	inputPath := fs.String("input", "", "feature CSV")
	header := fs.Bool("header", false, "skip the first CSV row")
	full := fs.Bool("full", false, "predict with every record of a full-path model")
	out := fs.String("out", "", "output CSV (default stdout)")
	verbose := fs.Bool("v", false, "log progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inputPath == "" {
		return errors.New("-input is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	s, err := elasticnet.New(cfg, elasticnet.WithLogger(newLogger(*verbose)))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	model, err := s.LoadModel(*modelPath)
	if err != nil {
		return err
	}
	x, err := readTable(*inputPath, *header)
	if err != nil {
		return err
	}
	in := inputs{single: model.Precision().String() == "float32"}
	pred, err := s.Predict(context.Background(), in.matrix(x), nil, *full)
	if err != nil {
		return err
	}

	var names []string
	var cols [][]float64
	for row := range pred.Rows() {
		for a := range pred.NAlphas() {
			col, err := column(pred, in.single, row, a)
			if err != nil {
				return err
			}
			if *full {
				names = append(names, fmt.Sprintf("lambda%d_alpha%d", row, a))
			} else {
				names = append(names, fmt.Sprintf("alpha%d", a))
			}
			cols = append(cols, col)
		}
	}

	w := stdout
	if *out != "" {
		//nolint:gosec // G304: File path comes from the command line
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return writeColumns(w, names, cols)
}

func column(pred *elasticnet.PredictionResult, single bool, row, a int) ([]float64, error) {
	if !single {
		v, err := elasticnet.Predictions[float64](pred, row, a)
		return append([]float64(nil), v...), err
	}
	v, err := elasticnet.Predictions[float32](pred, row, a)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out, nil
}
