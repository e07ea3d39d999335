// Package energetics defines the structural energetics collaborator used by
// interface scoring, with an external-command engine, a native geometric
// engine and a per-feature fallback between them.
package energetics

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned for features an engine cannot compute.
	ErrUnsupported = errors.New("feature not supported by engine")

	// ErrFeatureMissing is returned when an engine produced no value for a feature.
	ErrFeatureMissing = errors.New("feature missing from report")
)

// Feature names an interface-level quantity.
type Feature string

const (
	InterfaceDG          Feature = "interface_dG"
	InterfaceDSASA       Feature = "interface_dSASA"
	Packstat             Feature = "packstat"
	ShapeComplementarity Feature = "sc_value"
	InterfaceHbonds      Feature = "interface_hbonds"
	DGdSASARatio         Feature = "dG_dSASA_ratio"
	BuriedUnsatHbonds    Feature = "buried_unsat_hbonds"
)

// Features lists every interface-level feature.
var Features = []Feature{
	InterfaceDG, InterfaceDSASA, Packstat, ShapeComplementarity,
	InterfaceHbonds, DGdSASARatio, BuriedUnsatHbonds,
}

// Report exposes each quantity independently so a failure in one does not
// prevent reading the others.
type Report interface {
	Value(f Feature) (float64, error)
	ChainEnergy(chain string) (float64, error)
	ChainSASA(chain string) (float64, error)
	SurfaceResidues(chain string) ([]int, error)
}

// Engine analyzes a two-chain complex. An Analyze error means the structure
// itself could not be loaded.
type Engine interface {
	Analyze(ctx context.Context, path, binder, target string) (Report, error)
}

// Fallback answers each feature from primary and falls back to secondary when
// primary fails, so a native engine can fill gaps left by an external one.
func Fallback(primary, secondary Engine) Engine {
	return &fallbackEngine{primary: primary, secondary: secondary}
}

type fallbackEngine struct {
	primary   Engine
	secondary Engine
}

func (e *fallbackEngine) Analyze(ctx context.Context, path, binder, target string) (Report, error) {
	p, perr := e.primary.Analyze(ctx, path, binder, target)
	s, serr := e.secondary.Analyze(ctx, path, binder, target)
	if perr != nil && serr != nil {
		return nil, errors.Join(perr, serr)
	}
	return &fallbackReport{primary: p, primaryErr: perr, secondary: s, secondaryErr: serr}, nil
}

type fallbackReport struct {
	primary      Report
	primaryErr   error
	secondary    Report
	secondaryErr error
}

func try[T any](r *fallbackReport, get func(Report) (T, error)) (T, error) {
	var zero T
	firstErr := r.primaryErr
	if r.primary != nil {
		v, err := get(r.primary)
		if err == nil {
			return v, nil
		}
		firstErr = err
	}
	if r.secondary == nil {
		return zero, firstErr
	}
	v, err := get(r.secondary)
	if err != nil {
		return zero, errors.Join(firstErr, err)
	}
	return v, nil
}

func (r *fallbackReport) Value(f Feature) (float64, error) {
	return try(r, func(rep Report) (float64, error) { return rep.Value(f) })
}

func (r *fallbackReport) ChainEnergy(chain string) (float64, error) {
	return try(r, func(rep Report) (float64, error) { return rep.ChainEnergy(chain) })
}

func (r *fallbackReport) ChainSASA(chain string) (float64, error) {
	return try(r, func(rep Report) (float64, error) { return rep.ChainSASA(chain) })
}

func (r *fallbackReport) SurfaceResidues(chain string) ([]int, error) {
	return try(r, func(rep Report) ([]int, error) { return rep.SurfaceResidues(chain) })
}

func unsupported(what string) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, what)
}
