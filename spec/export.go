package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Format selects the serialization used when exporting a document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatCBOR:
		return "cbor"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatFromPath picks a format from the file extension. Unknown
// extensions export as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".cbor":
		return FormatCBOR
	}
	return FormatJSON
}

var cborMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

var mapStringAny = reflect.TypeFor[map[string]any]()

// Encode serializes the document. JSON output is indented with two spaces.
// YAML keeps the JSON field order.
func (d Document) Encode(f Format) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("spec: encode json: %w", err)
	}

	switch f {
	case FormatJSON:
		return buf.Bytes(), nil
	case FormatYAML:
		// JSON is a subset of YAML; decoding into a node keeps key order.
		var node yaml.Node
		if err := yaml.Unmarshal(buf.Bytes(), &node); err != nil {
			return nil, fmt.Errorf("spec: encode yaml: %w", err)
		}
		clearStyle(&node)
		out, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("spec: encode yaml: %w", err)
		}
		return out, nil
	case FormatCBOR:
		var v any
		if err := json.Unmarshal(buf.Bytes(), &v); err != nil {
			return nil, fmt.Errorf("spec: encode cbor: %w", err)
		}
		out, err := cborMode.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("spec: encode cbor: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("spec: unknown format %v", f)
}

// MarshalCBOR implements cbor.Marshaler with the FormatCBOR encoding.
func (d Document) MarshalCBOR() ([]byte, error) {
	return d.Encode(FormatCBOR)
}

// clearStyle switches flow-style collections produced by the JSON input to
// block style.
func clearStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Style&yaml.DoubleQuotedStyle != 0 && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		clearStyle(c)
	}
}

// WriteFile writes the document to path in the format implied by its
// extension.
func (d Document) WriteFile(path string) error {
	b, err := d.Encode(FormatFromPath(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("spec: write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a JSON or YAML document. CBOR files are decoded as well.
func ReadFile(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("spec: read %s: %w", path, err)
	}
	return Decode(b, FormatFromPath(path))
}

// Decode parses a serialized document.
func Decode(b []byte, f Format) (Document, error) {
	var v any
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(b, &v); err != nil {
			return Document{}, fmt.Errorf("spec: decode yaml: %w", err)
		}
	case FormatCBOR:
		dm, err := cbor.DecOptions{DefaultMapType: mapStringAny}.DecMode()
		if err != nil {
			return Document{}, err
		}
		if err := dm.Unmarshal(b, &v); err != nil {
			return Document{}, fmt.Errorf("spec: decode cbor: %w", err)
		}
	default:
		var d Document
		if err := json.Unmarshal(b, &d); err != nil {
			return Document{}, fmt.Errorf("spec: decode json: %w", err)
		}
		return d, nil
	}
	j, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("spec: decode: %w", err)
	}
	var d Document
	if err := json.Unmarshal(j, &d); err != nil {
		return Document{}, fmt.Errorf("spec: decode: %w", err)
	}
	return d, nil
}
