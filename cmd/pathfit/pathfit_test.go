package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestReadTableSplit(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "train.csv", "x1,x2,y\n1,2,3\n4,5,6\n")

	tbl, err := readTable(p, true)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.rows)
	assert.Equal(t, 3, tbl.cols)

	x, y := tbl.split()
	assert.Equal(t, 2, x.cols)
	assert.Equal(t, []float64{1, 2, 4, 5}, x.data)
	assert.Equal(t, []float64{3, 6}, y)

	_, err = readTable(p, false)
	require.Error(t, err, "header row is not numeric")

	empty := writeFile(t, dir, "empty.csv", "x,y\n")
	_, err = readTable(empty, true)
	require.Error(t, err)
}

func TestFitPredictCommands(t *testing.T) {
	dir := t.TempDir()
	var train strings.Builder
	train.WriteString("x,y\n")
	for i := range 8 {
		x := float64(i)
		train.WriteString(strconv.FormatFloat(x, 'g', -1, 64) + "," + strconv.FormatFloat(2*x+1, 'g', -1, 64) + "\n")
	}
	trainPath := writeFile(t, dir, "train.csv", train.String())
	inputPath := writeFile(t, dir, "input.csv", "x\n10\n20\n")
	configPath := writeFile(t, dir, "config.yaml", "alphas: [0]\nlambdas: [0]\ntolerance: 1e-12\nmax_iterations: 200000\n")
	modelPath := filepath.Join(dir, "model.enp")
	predPath := filepath.Join(dir, "pred.csv")

	var out bytes.Buffer
	err := runFit([]string{"-config", configPath, "-train", trainPath, "-header", "-out", modelPath}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "train_rmse")
	assert.Contains(t, out.String(), modelPath)
	assert.FileExists(t, modelPath)

	out.Reset()
	err = runPredict([]string{"-config", configPath, "-model", modelPath, "-input", inputPath, "-header", "-out", predPath}, &out)
	require.NoError(t, err)

	f, err := os.Open(predPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"alpha0"}, recs[0])
	for i, want := range []float64{21, 41} {
		got, err := strconv.ParseFloat(recs[i+1][0], 64)
		require.NoError(t, err)
		assert.InEpsilon(t, want, got, 1e-4)
	}
}

func TestFitFlags(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, runFit(nil, &out), "missing -train")
	require.Error(t, runFit([]string{"-train", "x.csv", "-precision", "float16"}, &out))
	require.Error(t, runPredict(nil, &out), "missing -input")
}
