package energetics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/withObsrvr/binder-annotator/internal/util"
)

// DefaultCommandArgs passes the structure and the interface definition.
var DefaultCommandArgs = []string{"--pdb", "{input}", "--interface", "{binder}_{target}", "--json"}

// CommandEngine runs an external scoring program that prints a JSON report:
//
//	{
//	  "features": {"interface_dG": -31.2, "packstat": 0.61, ...},
//	  "errors":   {"sc_value": "shape complementarity did not converge"},
//	  "chains":   {"A": {"energy": -210.4, "sasa": 5120.7, "surface_residues": [1, 2, 5]}}
//	}
type CommandEngine struct {
	Binary string
	Args   []string
	Dir    string
}

type chainReport struct {
	Energy          *float64 `json:"energy"`
	SASA            *float64 `json:"sasa"`
	SurfaceResidues []int    `json:"surface_residues"`
}

type jsonReport struct {
	Features map[string]*float64    `json:"features"`
	Errors   map[string]string      `json:"errors"`
	Chains   map[string]chainReport `json:"chains"`
}

// Analyze runs the program and decodes its report.
func (e *CommandEngine) Analyze(ctx context.Context, path, binder, target string) (Report, error) {
	args := e.Args
	if len(args) == 0 {
		args = DefaultCommandArgs
	}
	cmd := util.Command{Binary: e.Binary, Args: args, Dir: e.Dir}

	out, err := cmd.Run(ctx, map[string]string{"input": path, "binder": binder, "target": target})
	if err != nil {
		return nil, fmt.Errorf("energetics: %w", err)
	}
	return DecodeReport(out)
}

// DecodeReport parses the JSON report format.
func DecodeReport(data []byte) (Report, error) {
	var r jsonReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode energetics report: %w", err)
	}
	return &r, nil
}

func (r *jsonReport) lookup(name string, v *float64) (float64, error) {
	if msg, ok := r.Errors[name]; ok {
		return 0, fmt.Errorf("%s: %s", name, msg)
	}
	if v == nil {
		return 0, fmt.Errorf("%w: %s", ErrFeatureMissing, name)
	}
	return *v, nil
}

func (r *jsonReport) Value(f Feature) (float64, error) {
	return r.lookup(string(f), r.Features[string(f)])
}

func (r *jsonReport) ChainEnergy(chain string) (float64, error) {
	return r.lookup("energy_"+chain, r.Chains[chain].Energy)
}

func (r *jsonReport) ChainSASA(chain string) (float64, error) {
	return r.lookup("sasa_"+chain, r.Chains[chain].SASA)
}

func (r *jsonReport) SurfaceResidues(chain string) ([]int, error) {
	if msg, ok := r.Errors["surface_"+chain]; ok {
		return nil, fmt.Errorf("surface_%s: %s", chain, msg)
	}
	c, ok := r.Chains[chain]
	if !ok || c.SurfaceResidues == nil {
		return nil, fmt.Errorf("%w: surface_%s", ErrFeatureMissing, chain)
	}
	return c.SurfaceResidues, nil
}
