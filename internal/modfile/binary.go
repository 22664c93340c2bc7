package modfile

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
)

// binaryVersion constants
const (
	binaryVersionV1 byte = 0x01
)

var binaryMagic = [4]byte{'F', 'W', 'M', 'B'}

// Encode converts a module to binary format.
// Format:
// - Magic number (4 bytes): "FWMB"
// - Version (1 byte): 0x01
// - Gob-encoded Document
func Encode(m *metadata.Module) ([]byte, error) {
	buf := new(bytes.Buffer)

	buf.Write(binaryMagic[:])
	buf.WriteByte(binaryVersionV1)

	enc := gob.NewEncoder(buf)
	if err := enc.Encode(Build(m)); err != nil {
		return nil, fmt.Errorf("module gob encoding failed: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode reads binary module data and links it against refs.
func Decode(data []byte, refs ...*metadata.Module) (*metadata.Module, error) {
	if len(data) < 5 {
		return nil, diagnostics.NewError(diagnostics.ErrW007, "", "module data too short")
	}
	if !bytes.Equal(data[:4], binaryMagic[:]) {
		return nil, diagnostics.NewError(diagnostics.ErrW007, "", "invalid magic number, expected FWMB")
	}

	version := data[4]
	switch version {
	case binaryVersionV1:
		var doc Document
		if err := gob.NewDecoder(bytes.NewReader(data[5:])).Decode(&doc); err != nil {
			return nil, diagnostics.Wrap(diagnostics.ErrW007, "", fmt.Errorf("v1 gob decoding failed: %w", err))
		}
		return Link(&doc, refs...)

	default:
		return nil, diagnostics.NewError(diagnostics.ErrW007, "",
			fmt.Sprintf("unsupported module version: %d (this binary supports version %d)", version, binaryVersionV1))
	}
}
