package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/RMahshie/labfit/internal/dataset"
)

// ErrUnknownProfile is returned when a profile name is not configured
var ErrUnknownProfile = errors.New("unknown profile")

// Input is one measurement file read by an analysis
type Input struct {
	// Path is relative to the data directory or to the job's storage prefix.
	Path  string `mapstructure:"path" json:"path" validate:"required"`
	Label string `mapstructure:"label" json:"label,omitempty"`
	// Value is the metadata the lab encodes per file: gate voltage of an
	// output sweep, resistance of a noise trace, frequency of a C-V sweep.
	Value float64 `mapstructure:"value" json:"value,omitempty"`
	// Role distinguishes inputs of an analysis that reads several kinds of file.
	Role string `mapstructure:"role" json:"role,omitempty"`
	// Format overrides the profile's format for this file.
	Format *dataset.Format `mapstructure:"format" json:"format,omitempty"`
}

// FormatOr returns the input's own format, or def when it has none
func (in Input) FormatOr(def dataset.Format) dataset.Format {
	if in.Format != nil {
		return *in.Format
	}
	return def
}

// Name returns the label, or the path's base name when no label is set
func (in Input) Name() string {
	if in.Label != "" {
		return in.Label
	}
	name := in.Path
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Output controls where and how an analysis writes its artifacts
type Output struct {
	Dir          string `mapstructure:"dir" json:"dir,omitempty"`
	DPI          int    `mapstructure:"dpi" json:"dpi,omitempty" validate:"omitempty,min=30,max=1200"`
	Workbook     bool   `mapstructure:"workbook" json:"workbook,omitempty"`
	WorkbookName string `mapstructure:"workbook_name" json:"workbook_name,omitempty"`
}

// Profile is a named, fully explicit description of one analysis run
type Profile struct {
	Name        string         `mapstructure:"-" json:"name"`
	Kind        string         `mapstructure:"kind" json:"kind" validate:"required,analysiskind"`
	Description string         `mapstructure:"description" json:"description,omitempty"`
	Inputs      []Input        `mapstructure:"inputs" json:"inputs" validate:"required,min=1,dive"`
	Format      dataset.Format `mapstructure:"format" json:"format"`
	Params      map[string]any `mapstructure:"params" json:"params,omitempty"`
	Output      Output         `mapstructure:"output" json:"output"`
}

// InputsWithRole returns the inputs whose Role equals role
func (p *Profile) InputsWithRole(role string) []Input {
	var out []Input
	for _, in := range p.Inputs {
		if in.Role == role {
			out = append(out, in)
		}
	}
	return out
}

// Profiles maps profile names to profiles
type Profiles map[string]*Profile

// Names returns the profile names in sorted order
func (ps Profiles) Names() []string {
	names := make([]string, 0, len(ps))
	for name := range ps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named profile. Names are case-insensitive.
func (ps Profiles) Get(name string) (*Profile, error) {
	if p, ok := ps[strings.ToLower(name)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}

// LoadProfiles reads the YAML profile file at path. kinds lists the analysis
// kinds a profile may name.
func LoadProfiles(path string, kinds []string) (Profiles, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profiles: %w", err)
	}
	defer f.Close()
	return ParseProfiles(f, kinds)
}

// ParseProfiles reads profiles from YAML of the form
//
//	profiles:
//	  <name>:
//	    kind: ...
//	    inputs: [...]
func ParseProfiles(r io.Reader, kinds []string) (Profiles, error) {
	// Profile names such as "noise-1.5k" contain dots.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	raw := v.GetStringMap("profiles")
	if len(raw) == 0 {
		return nil, errors.New("no profiles defined")
	}

	validate := newValidator(kinds)
	profiles := make(Profiles, len(raw))
	for name, body := range raw {
		p := &Profile{}
		if err := decode(body, p); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		p.Name = name
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		if err := checkFormats(p); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		profiles[name] = p
	}
	return profiles, nil
}

// Decode decodes a loosely typed map into out using the profile hooks:
// column references accept indices or header names.
func Decode(in any, out any) error {
	return decode(in, out)
}

func decode(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			dataset.ColumnRefHook(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func newValidator(kinds []string) *validator.Validate {
	v := validator.New()
	v.RegisterValidation("analysiskind", func(fl validator.FieldLevel) bool {
		return slices.Contains(kinds, fl.Field().String())
	})
	// Report YAML key names in validation errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewValidator returns the validator used for profiles, for callers that
// validate parameter structs decoded from a profile.
func NewValidator(kinds []string) *validator.Validate {
	return newValidator(kinds)
}

func checkFormats(p *Profile) error {
	if err := checkFormat(p.Format, "format"); err != nil {
		return err
	}
	for i, in := range p.Inputs {
		if in.Format == nil {
			continue
		}
		if err := checkFormat(*in.Format, fmt.Sprintf("inputs[%d].format", i)); err != nil {
			return err
		}
	}
	return nil
}

func checkFormat(f dataset.Format, where string) error {
	for f := &f; f != nil; f = f.Fallback {
		switch f.Decimal {
		case "", ".", ",":
		default:
			return fmt.Errorf("%s: decimal separator %q must be \".\" or \",\"", where, f.Decimal)
		}
		if f.SkipRows < 0 {
			return fmt.Errorf("%s: skip_rows must not be negative", where)
		}
	}
	return nil
}
