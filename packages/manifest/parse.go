package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/stepwise/packages/assertions"
)

// Format is the serialization of a manifest.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid manifest")

//go:embed schema.json
var schemaJSON []byte

var schema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("manifest schema: %v", err))
	}
	return s
}()

// Schema returns the JSON schema manifests are validated against.
func Schema() []byte {
	return schemaJSON
}

// FormatFromPath picks the format from the file extension, YAML unless it is .json.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads, validates and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse validates data against the schema and decodes it.
func Parse(data []byte, format Format) (*Manifest, error) {
	if err := ValidateSchema(data, format); err != nil {
		return nil, err
	}

	m := &Manifest{}
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, m)
	default:
		err = yaml.Unmarshal(data, m)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ValidateSchema checks data against the manifest JSON schema.
func ValidateSchema(data []byte, format Format) error {
	var doc any
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrInvalid)
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if res.Valid() {
		return nil
	}

	var errs *multierror.Error
	for _, e := range res.Errors() {
		errs = multierror.Append(errs, errors.New(e.String()))
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errs)
}

// Validate checks what the schema cannot express.
func (m *Manifest) Validate() error {
	var errs *multierror.Error
	check := func(where string, steps []Step) {
		for i := range steps {
			if err := steps[i].validate(); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s[%d]: %w", where, i, err))
			}
		}
	}

	check("before", m.Before)
	check("after", m.After)
	if m.StepHooks != nil {
		check("stepHooks.before", m.StepHooks.Before)
		check("stepHooks.after", m.StepHooks.After)
	}

	seen := make(map[string]int, len(m.Tests))
	for i, t := range m.Tests {
		prefix := fmt.Sprintf("tests[%d]", i)
		if prev, dup := seen[t.Name]; dup {
			errs = multierror.Append(errs, fmt.Errorf("%s: duplicate test name %q, first used by tests[%d]", prefix, t.Name, prev))
		} else {
			seen[t.Name] = i
		}
		check(prefix+".before", t.Before)
		check(prefix+".after", t.After)
		check(prefix+".steps", t.Steps)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (s *Step) validate() error {
	set := 0
	for _, ok := range []bool{s.Run != "", s.WaitFor != nil, s.Action != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return errors.New("exactly one of run, waitFor or action is required")
	}
	if (s.Capture != "" || len(s.Captures) > 0 || len(s.Expect) > 0) && s.Run == "" {
		return errors.New("capture, captures and expect need a run step")
	}
	for _, c := range s.Captures {
		if c.Name == "" {
			return errors.New("captures need a name")
		}
	}
	for _, x := range s.Expect {
		if _, err := assertions.ParseOperator(x.Operator); err != nil {
			return fmt.Errorf("expect %s: %w", x, err)
		}
	}
	if s.WaitFor != nil {
		if _, _, err := s.WaitFor.durations(); err != nil {
			return err
		}
	}
	return nil
}
