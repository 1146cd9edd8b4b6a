// Package serialization provides the .enp format for saving and loading fitted
// elastic-net paths.
//
//	Format Structure:
//	  [4 bytes: Magic "ENPF"]
//	  [4 bytes: Version (uint32 LE)]
//	  [4 bytes: Flags (uint32 LE)]
//	  [4 bytes: Reserved]
//	  [8 bytes: Header Size (uint64 LE)]
//	  [8 bytes: Data Size (uint64 LE)]
//	  [32 bytes: SHA-256 of the data section]
//	  [Header: JSON metadata]
//	  [Padding to a 64-byte boundary]
//	  [Data: path records, little-endian, row-major]
//
// When FlagCompressed is set, everything after the 64-byte fixed header is one xz
// stream. Sizes and the checksum always describe the uncompressed bytes.
//
// Example usage:
//
//	if err := serialization.Save("model.enp", model, serialization.Meta{Intercept: true}, serialization.WriteOptions{}); err != nil {
//	    log.Fatal(err)
//	}
//	model, header, err := serialization.Load("model.enp", dev, serialization.ReaderOptions{})
package serialization
