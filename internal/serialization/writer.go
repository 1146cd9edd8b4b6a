package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/born-ml/pathfit/internal/path"
	"github.com/ulikunitz/xz"
)

// WriteOptions configures Write.
type WriteOptions struct {
	Compress bool // xz-compress everything after the fixed header
}

// Write encodes model to w in .enp format.
func Write(w io.Writer, model *path.Result, meta Meta, opts WriteOptions) error {
	if model == nil || model.Freed() {
		return fmt.Errorf("write model: no path result")
	}
	data, err := model.Buffer().Bytes()
	if err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	l := model.Layout()
	header := Header{
		FormatVersion:  FormatVersion,
		PathfitVersion: pathfitVersion,
		Session:        meta.Session,
		CreatedAt:      time.Now().UTC(),
		DType:          model.Precision().String(),
		Shape:          []int(model.Buffer().Shape()),
		Full:           l.Full,
		NAlphas:        l.NAlphas,
		NLambdas:       l.NLambdas,
		N:              l.N,
		Intercept:      meta.Intercept,
		Standardize:    meta.Standardize,
		Metadata:       meta.Metadata,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	flags := uint32(0)
	if opts.Compress {
		flags |= FlagCompressed
	}
	if l.Full {
		flags |= FlagFullPath
	}
	if len(meta.Metadata) > 0 {
		flags |= FlagHasMeta
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	// 0x0C-0x0F reserved
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	checksum := ComputeChecksum(data)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}

	body := w
	var zw *xz.Writer
	if opts.Compress {
		if zw, err = xz.NewWriter(w); err != nil {
			return fmt.Errorf("failed to start xz stream: %w", err)
		}
		body = zw
	}

	if _, err := body.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if pad := padding(len(headerJSON)); pad > 0 {
		if _, err := body.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	if _, err := body.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to finish xz stream: %w", err)
		}
	}
	return nil
}

// padding returns the zero bytes between a JSON header of size n and the data.
func padding(n int) int {
	pos := FixedHeaderSize + n
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}

// Save writes model to a file.
func Save(filename string, model *path.Result, meta Meta, opts WriteOptions) error {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, model, meta, opts); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush %s: %w", filename, err)
	}
	return f.Close()
}
