package roster

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Format identifies a roster file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported roster file extension %q (want .json, .yaml, .yml or .cue)", filepath.Ext(path))
	}
}

// ParseFormat validates a format name given on the command line.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatCUE:
		return f, nil
	default:
		return "", fmt.Errorf("unknown roster format %q", s)
	}
}

// LoadFile reads and decodes a roster file, inferring the format from its
// extension.
func LoadFile(path string) ([]Record, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	records, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// Decode parses a roster payload. A payload that is not a list of
// entity-shaped records yields a *ValidationError. Decode does not check ID
// uniqueness; Pool.Import does.
func Decode(data []byte, format Format) ([]Record, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(data)
	case FormatYAML:
		return decodeYAML(data)
	case FormatCUE:
		return decodeCUE(data)
	default:
		return nil, fmt.Errorf("decode roster: unknown format %q", format)
	}
}

// Encode writes records in the given format. CUE output is not supported.
func Encode(w io.Writer, records []Record, format Format) error {
	if records == nil {
		records = []Record{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode roster: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("encode roster: unsupported format %q", format)
	}
}

func decodeJSON(data []byte) ([]Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("payload is not a list of records: %v", err)}
	}
	if items == nil {
		// null unmarshals without error and leaves the slice nil.
		return nil, &ValidationError{Message: "payload is not a list of records: got null"}
	}

	records := make([]Record, len(items))
	for i, raw := range items {
		if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, validationErrorf(fmt.Sprintf("records[%d]", i), "expected an object, got %s", raw)
		}
		if err := json.Unmarshal(raw, &records[i]); err != nil {
			return nil, validationErrorf(fmt.Sprintf("records[%d]", i), "%v", err)
		}
	}
	return records, nil
}

func decodeYAML(data []byte) ([]Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("malformed YAML: %v", err)}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return []Record{}, nil
	}

	list := doc.Content[0]
	if list.Kind != yaml.SequenceNode {
		return nil, &ValidationError{Message: "payload is not a list of records"}
	}

	records := make([]Record, len(list.Content))
	for i, item := range list.Content {
		if item.Kind != yaml.MappingNode {
			return nil, validationErrorf(fmt.Sprintf("records[%d]", i), "expected a mapping (line %d)", item.Line)
		}
		if err := item.Decode(&records[i]); err != nil {
			return nil, validationErrorf(fmt.Sprintf("records[%d]", i), "%v", err)
		}
	}
	return records, nil
}

func decodeCUE(data []byte) ([]Record, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile roster schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename("roster.cue"))
	if err := value.Err(); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("malformed CUE: %v", err)}
	}

	students := value.LookupPath(cue.ParsePath("students"))
	if !students.Exists() {
		return nil, validationErrorf("students", "field is required")
	}
	if students.IncompleteKind() != cue.ListKind {
		return nil, validationErrorf("students", "must be a list of records")
	}

	unified := schema.LookupPath(cue.ParsePath("#Roster")).Unify(students)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, validationErrorf("students", "%v", err)
	}

	var records []Record
	if err := unified.Decode(&records); err != nil {
		return nil, validationErrorf("students", "%v", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
