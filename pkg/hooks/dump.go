package hooks

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/srand/espilot/pkg/utils"
)

// Encodes a status dump, compressed as selected by path.
func marshalDump(dump StatusDump, path string) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeDump(&buf, dump, path); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeDump(w io.Writer, dump StatusDump, path string) error {
	compressor, err := utils.NewCompressWriter(w, path)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(compressor)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(dump); err != nil {
		compressor.Close()
		return err
	}

	return compressor.Close()
}

// Reads back a status dump written by WriteStatusDump.
func ReadStatusDump(fs utils.Fs, path string) (*StatusDump, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := utils.NewDecompressReader(file, path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	dump := &StatusDump{}
	if err := json.NewDecoder(reader).Decode(dump); err != nil {
		return nil, err
	}
	return dump, nil
}
