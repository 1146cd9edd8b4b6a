// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides host-memory devices for the elastic-net solver.
//
// # Overview
//
// A CPU device is a pool of 64-byte aligned host allocations. Staged buffers on a CPU
// device are read by the solver kernels without copies, and a set of CPU devices lets
// non-shared sessions hold one replica of the dataset per device.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/pathfit/backend/cpu"
//	    "github.com/born-ml/pathfit/elasticnet"
//	)
//
//	func main() {
//	    devices, err := cpu.NewSet(2)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    s, err := elasticnet.New(elasticnet.DefaultConfig(), elasticnet.WithDevices(devices))
//	    ...
//	}
//
// Features reports the vector extensions of the host, as detected by
// golang.org/x/sys/cpu.
package cpu
