// Package analysis runs one measurement analysis from a profile: it loads the
// profile's input files, transforms the columns into physical quantities, fits
// them and collects the parameters, tables and figures into an Outcome.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/labfit/internal/config"
	"github.com/RMahshie/labfit/internal/dataset"
	"github.com/RMahshie/labfit/internal/report"
	"github.com/RMahshie/labfit/internal/storage"
)

// Outcome is what one analyzer run produces.
type Outcome = report.Outcome

// ErrUnknownKind is returned for a profile kind with no registered analyzer.
var ErrUnknownKind = errors.New("unknown analysis kind")

// Analyzer implements one measurement type.
type Analyzer interface {
	Kind() string
	Run(ctx context.Context, req *Request) (*Outcome, error)
}

// Registry maps kinds to analyzers.
type Registry struct {
	analyzers map[string]Analyzer
}

// NewRegistry returns a registry holding analyzers.
func NewRegistry(analyzers ...Analyzer) *Registry {
	r := &Registry{analyzers: make(map[string]Analyzer)}
	for _, a := range analyzers {
		r.Register(a)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in analyzer.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Capacitance{},
		MottSchottky{},
		XYPlot{},
		TransferLinear{},
		TransferLog{},
		OutputCharacteristics{},
		GainTable{},
		TransferFunction{},
		NoisePSD{},
		BoltzmannVariance{},
		AFMForce{},
		CyclicVoltammetry{},
		ImpedanceSpectrum{},
	)
}

// Register adds a, replacing any analyzer of the same kind.
func (r *Registry) Register(a Analyzer) {
	r.analyzers[a.Kind()] = a
}

// Get returns the analyzer for kind.
func (r *Registry) Get(kind string) (Analyzer, error) {
	a, ok := r.analyzers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return a, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.analyzers))
	for k := range r.analyzers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Request is the input of one analyzer run.
type Request struct {
	Profile *config.Profile
	Source  storage.Source
}

// Params decodes the profile's params into dst, which should already hold
// the defaults, and validates the result.
func (r *Request) Params(dst any) error {
	if len(r.Profile.Params) > 0 {
		if err := config.Decode(r.Profile.Params, dst); err != nil {
			return fmt.Errorf("params: %w", err)
		}
	}
	if err := paramValidator.Struct(dst); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

var paramValidator = validator.New()

// Read returns the whole content of an input.
func (r *Request) Read(ctx context.Context, in config.Input) ([]byte, error) {
	rc, err := r.Source.Open(ctx, in.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", in.Path, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Columns loads an input with its format and extracts refs. Rows skipped by a
// lenient format are logged and returned.
func (r *Request) Columns(ctx context.Context, in config.Input, refs ...dataset.ColumnRef) ([][]float64, []dataset.SkippedRow, error) {
	data, err := r.Read(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	table, cols, err := dataset.ParseColumns(data, in.FormatOr(r.Profile.Format), refs...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", in.Path, err)
	}
	for _, s := range table.Skipped {
		log.Warn().
			Str("profile", r.Profile.Name).
			Str("file", in.Path).
			Int("line", s.Line).
			Str("row", s.Text).
			Msg("Skipped malformed row")
	}
	log.Debug().
		Str("file", in.Path).
		Int("points", len(cols[0])).
		Int("skipped", len(table.Skipped)).
		Msg("Loaded input")
	return cols, table.Skipped, nil
}

// Table loads an input with its format.
func (r *Request) Table(ctx context.Context, in config.Input) (*dataset.Table, error) {
	data, err := r.Read(ctx, in)
	if err != nil {
		return nil, err
	}
	t, err := dataset.Parse(data, in.FormatOr(r.Profile.Format))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.Path, err)
	}
	return t, nil
}

// Run resolves the profile's analyzer in reg and runs it against src.
func Run(ctx context.Context, reg *Registry, p *config.Profile, src storage.Source) (*Outcome, error) {
	a, err := reg.Get(p.Kind)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logger := log.With().Str("profile", p.Name).Str("kind", p.Kind).Logger()
	logger.Info().Int("inputs", len(p.Inputs)).Msg("Running analysis")

	out, err := a.Run(ctx, &Request{Profile: p, Source: src})
	if err != nil {
		logger.Error().Err(err).Msg("Analysis failed")
		return nil, fmt.Errorf("%s (%s): %w", p.Name, p.Kind, err)
	}
	if out.Title == "" {
		out.Title = p.Name
	}
	if p.Output.DPI > 0 {
		for _, f := range out.Figures {
			f.DPI = p.Output.DPI
		}
	}

	logger.Info().
		Int("parameters", len(out.Parameters)).
		Int("figures", len(out.Figures)).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis completed")
	return out, nil
}
