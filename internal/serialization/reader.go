package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/device"
	"github.com/born-ml/pathfit/internal/path"
	"github.com/ulikunitz/xz"
)

// ReaderOptions configures Read.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// Read decodes a .enp stream and uploads the path records to dev.
func Read(r io.Reader, dev device.Device, opts ReaderOptions) (*path.Result, *Header, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersion {
		return nil, nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, v, FormatVersion)
	}
	flags := binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	var checksum [ChecksumSize]byte
	copy(checksum[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, nil, ErrHeaderTooLarge
	}
	if dataSize > MaxDataSize {
		return nil, nil, &ValidationError{Field: "data_size", Details: fmt.Sprintf("%d bytes, max %d", dataSize, int64(MaxDataSize))}
	}

	body := r
	if flags&FlagCompressed != 0 {
		zr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open xz stream: %w", err)
		}
		body = zr
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(body, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}
	//nolint:gosec // G115: dataSize is bounded by MaxDataSize
	if err := ValidateHeader(&header, int64(dataSize), opts.ValidationLevel); err != nil {
		return nil, nil, fmt.Errorf("validation failed: %w", err)
	}
	if header.Full != (flags&FlagFullPath != 0) {
		return nil, nil, &ValidationError{Field: "full", Details: "header and flags disagree"}
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	if _, err := io.CopyN(io.Discard, body, int64(padding(int(headerSize)))); err != nil {
		return nil, nil, fmt.Errorf("failed to skip padding: %w", err)
	}
	data := make([]byte, dataSize)
	if _, err := io.ReadFull(body, data); err != nil {
		return nil, nil, fmt.Errorf("failed to read data: %w", err)
	}
	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(data, checksum); err != nil {
			return nil, nil, err
		}
	}

	dt, ok := header.dataType()
	if !ok {
		return nil, nil, &ValidationError{Field: "dtype", Details: fmt.Sprintf("unknown %q", header.DType)}
	}
	buf, err := buffer.FromBytes(dev, data, buffer.Shape(header.Shape), dt, buffer.RowMajor)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to upload path: %w", err)
	}
	model, err := path.Wrap(buf, header.Layout())
	if err != nil {
		_ = buf.Free()
		return nil, nil, err
	}
	return model, &header, nil
}

// Load reads a .enp file.
func Load(filename string, dev device.Device, opts ReaderOptions) (*path.Result, *Header, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(bufio.NewReader(f), dev, opts)
}
