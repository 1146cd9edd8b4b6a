// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package elasticnet fits elastic-net regularization paths on CPU or WebGPU devices.
//
// # Overview
//
// A Session stages a dataset once on a source device and shares it with every compute
// worker, sweeps an alpha x lambda grid with optional cross-validation folds, and keeps
// the fitted path for later predictions:
//   - Float32 and Float64 data, inferred from the input slices
//   - Shared or per-device replicated uploads
//   - Full path or best record per alpha
//   - Model files with SHA-256 checksums and optional xz compression
//
// # Basic Usage
//
//	cfg := elasticnet.DefaultConfig()
//	cfg.NFolds = 5
//	s, err := elasticnet.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	model, err := s.Fit(ctx, elasticnet.Dataset{
//	    TrainX: elasticnet.NewMatrix(m, n, elasticnet.RowMajor, x),
//	    TrainY: elasticnet.NewVector(y),
//	}, false)
//	views, _ := elasticnet.ViewsOf[float64](model)
//	coef := views.Coefficients(0, 0)
//
// # Memory Management
//
// Everything a session produces stays valid until one of its teardown phases runs:
// ReleaseInputs frees the staged dataset, ReleasePathResult the fitted path and
// ReleasePredictions every prediction. Close runs all three.
package elasticnet
