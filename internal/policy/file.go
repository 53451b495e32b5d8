package policy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config file names searched, in order, by Discover.
var ConfigFileNames = []string{"seatbelt.yaml", "seatbelt.yml", "seatbelt.json", "seatbelt.cue"}

// Load error codes.
const (
	ErrCodeRead   = "CONFIG_READ"
	ErrCodeCUE    = "CONFIG_CUE"
	ErrCodeSchema = "CONFIG_SCHEMA"
	ErrCodeDecode = "CONFIG_DECODE"
)

// LoadError describes a config file that could not be used.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Override applies a config layer to files matching any of Files.
type Override struct {
	Files  []string `yaml:"files"`
	Config `yaml:",inline"`
}

// File is a parsed seatbelt config file.
type File struct {
	// Path is the absolute path the file was loaded from.
	Path string `yaml:"-"`

	Config    `yaml:",inline"`
	Overrides []Override `yaml:"overrides,omitempty"`
}

// Dir returns the directory containing the config file.
func (f *File) Dir() string {
	return filepath.Dir(f.Path)
}

// Discover returns the first config file found in dir, or "" if none exists.
func Discover(dir string) string {
	for _, name := range ConfigFileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// LoadFile reads, validates and decodes a config file. YAML, JSON and CUE
// are accepted; the format is chosen by extension. Relative recordFile and
// historyFile values are resolved against the file's directory.
func LoadFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRead, Path: path, Message: err.Error(), Err: err}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRead, Path: abs, Message: err.Error(), Err: err}
	}

	f, err := Parse(abs, data)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Parse decodes config data as if read from path.
func Parse(path string, data []byte) (*File, error) {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		exported, err := exportCUE(path, data)
		if err != nil {
			return nil, err
		}
		data = exported
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Path: path, Message: err.Error(), Err: err}
	}
	if raw != nil {
		if err := validateSchema(raw); err != nil {
			return nil, &LoadError{Code: ErrCodeSchema, Path: path, Message: cueerrors.Details(err, nil), Err: err}
		}
	}

	f := &File{Path: path}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Code: ErrCodeDecode, Path: path, Message: err.Error(), Err: err}
	}
	f.Path = path

	dir := filepath.Dir(path)
	f.Config = absolutize(dir, f.Config)
	for i := range f.Overrides {
		f.Overrides[i].Config = absolutize(dir, f.Overrides[i].Config)
	}
	return f, nil
}

// exportCUE evaluates a CUE config and returns it as JSON.
func exportCUE(path string, data []byte) ([]byte, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeCUE, Path: path, Message: cueerrors.Details(err, nil), Err: err}
	}
	out, err := v.MarshalJSON()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeCUE, Path: path, Message: cueerrors.Details(err, nil), Err: err}
	}
	return out, nil
}

// validateSchema unifies a decoded document with the #Config definition.
func validateSchema(raw any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return err
	}
	return def.Unify(doc).Validate(cue.Concrete(true))
}

func absolutize(dir string, c Config) Config {
	if c.RecordFile != nil {
		c.RecordFile = Ptr(resolvePath(dir, *c.RecordFile))
	}
	if c.HistoryFile != nil {
		c.HistoryFile = Ptr(resolvePath(dir, *c.HistoryFile))
	}
	return c
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
