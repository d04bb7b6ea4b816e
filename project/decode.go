package project

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Decoder is the common shape of the TOML and YAML stream decoders.
type Decoder interface {
	Decode(v any) error
}

// DecoderFunc creates a Decoder reading from r.
type DecoderFunc func(r io.Reader) Decoder

// decoders maps file extensions to strict decoders: unknown keys are
// errors rather than silently ignored.
var decoders = map[string]DecoderFunc{
	".toml": func(r io.Reader) Decoder {
		d := toml.NewDecoder(r)
		d.DisallowUnknownFields()
		return d
	},
	".yaml": yamlDecoder,
	".yml":  yamlDecoder,
}

func yamlDecoder(r io.Reader) Decoder {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	return d
}

// DecoderFor returns the decoder for a file name's extension.
func DecoderFor(name string) (DecoderFunc, error) {
	f, ok := decoders[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(name))
	}
	return f, nil
}

// Read decodes v from r.
func Read(v any, r io.Reader, f DecoderFunc) error {
	return f(r).Decode(v)
}

// Open decodes v from the named file, choosing the decoder by extension.
func Open(v any, filename string) error {
	f, err := DecoderFor(filename)
	if err != nil {
		return err
	}
	fp, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	if err := Read(v, bufio.NewReader(fp), f); err != nil {
		return fmt.Errorf("project: %s: %w", filename, err)
	}
	return nil
}
