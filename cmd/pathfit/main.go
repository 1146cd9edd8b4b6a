// Package main provides the pathfit CLI.
package main

import (
	"fmt"
	"os"
)

const version = "v0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("pathfit %s\n", version)
		return
	case "fit":
		err = runFit(os.Args[2:], os.Stdout)
	case "predict":
		err = runPredict(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pathfit %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("pathfit - elastic-net regularization paths")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  fit        Fit a path from CSV data and save the model")
	fmt.Println("  predict    Predict CSV rows with a saved model")
}
