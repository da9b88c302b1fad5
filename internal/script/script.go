// Package script builds models from HCL files. Each block names an entity
// kind and its label names the entity; attributes become builder options
// and nesting gives the parent:
//
//	locals {
//	  spec = "Gen 500kW"
//	}
//
//	prm {
//	  simulation_years = 20
//	}
//
//	microgrid "Main" {
//	  controller {
//	    controller_type = "Cycle Charging"
//	  }
//	  refueller "diesel" {
//	    period = 7
//	  }
//	  bus "B1" {
//	    diesel_generator "G1" {
//	      base_spec = local.spec
//	    }
//	  }
//	}
package script

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"mdtcore/internal/core"
	"mdtcore/pkg/domain"
)

// Reserved block types that configure instead of build.
const (
	blockLocals     = "locals"
	blockPRM        = "prm"
	blockController = "controller"
	blockRefueller  = "refueller"
)

// Script is a parsed model script.
type Script struct {
	filename string
	body     *hclsyntax.Body
}

// Result lists the entities a run built, in build order, with every
// diagnostic the run produced.
type Result struct {
	Entities []domain.Entity
	Log      *domain.Log
}

// prmBlock is the typed form of the prm block.
type prmBlock struct {
	SimulationYears *int    `hcl:"simulation_years,optional"`
	PowerflowType   *string `hcl:"powerflow_type,optional"`
	UseReliability  *bool   `hcl:"use_reliability,optional"`
	UseFragility    *bool   `hcl:"use_fragility,optional"`
}

func (p prmBlock) options() core.Options {
	opts := core.Options{}
	if p.SimulationYears != nil {
		opts["simulation_years"] = *p.SimulationYears
	}
	if p.PowerflowType != nil {
		opts["powerflow_type"] = *p.PowerflowType
	}
	if p.UseReliability != nil {
		opts["use_reliability"] = *p.UseReliability
	}
	if p.UseFragility != nil {
		opts["use_fragility"] = *p.UseFragility
	}
	return opts
}

// Parse parses src. filename is used in error positions.
func Parse(src []byte, filename string) (*Script, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", filename, diags)
	}
	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("parse %s: unexpected body type %T", filename, f.Body)
	}
	return &Script{filename: filename, body: body}, nil
}

// ParseFile reads and parses the script at path.
func ParseFile(path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Parse(src, path)
}

func functions() map[string]function.Function {
	return map[string]function.Function{
		"upper":  stdlib.UpperFunc,
		"lower":  stdlib.LowerFunc,
		"concat": stdlib.ConcatFunc,
		"format": stdlib.FormatFunc,
		"min":    stdlib.MinFunc,
		"max":    stdlib.MaxFunc,
	}
}

// evalContext evaluates every locals block. Locals may use functions but not
// other locals.
func (s *Script) evalContext() (*hcl.EvalContext, error) {
	ctx := &hcl.EvalContext{Functions: functions()}
	locals := map[string]cty.Value{}
	for _, block := range s.body.Blocks {
		if block.Type != blockLocals {
			continue
		}
		attrs, diags := block.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, diags
		}
		for name, attr := range attrs {
			v, diags := attr.Expr.Value(ctx)
			if diags.HasErrors() {
				return nil, diags
			}
			locals[name] = v
		}
	}
	ctx.Variables = map[string]cty.Value{"local": cty.ObjectVal(locals)}
	return ctx, nil
}

type runner struct {
	tx     *core.Transaction
	eval   *hcl.EvalContext
	result Result
}

// Run builds the script inside tx. Soft rejections are collected in the
// result Log; the first hard error stops the run and names the block.
func (s *Script) Run(ctx context.Context, tx *core.Transaction) (Result, error) {
	eval, err := s.evalContext()
	if err != nil {
		return Result{Log: domain.NewLog()}, fmt.Errorf("%s: locals: %w", s.filename, err)
	}
	r := &runner{tx: tx, eval: eval, result: Result{Log: domain.NewLog()}}
	for _, block := range s.body.Blocks {
		if err := r.block(ctx, block, nil); err != nil {
			return r.result, err
		}
	}
	return r.result, nil
}

func (r *runner) block(ctx context.Context, block *hclsyntax.Block, parent domain.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	at := block.DefRange().String()
	switch block.Type {
	case blockLocals:
		if parent != nil {
			return fmt.Errorf("%s: locals must be top level", at)
		}
		return nil
	case blockPRM:
		var p prmBlock
		if diags := gohcl.DecodeBody(block.Body, r.eval, &p); diags.HasErrors() {
			return fmt.Errorf("%s: %w", at, diags)
		}
		return r.configured(at)(r.tx.ConfigurePRM(p.options()))
	case blockController, blockRefueller:
		mg, ok := domain.AsMutable(parent)
		if !ok || mg.Kind() != domain.EntityMicrogrid {
			return fmt.Errorf("%s: %s belongs inside a microgrid block", at, block.Type)
		}
		opts, err := r.options(block.Body)
		if err != nil {
			return fmt.Errorf("%s: %w", at, err)
		}
		if block.Type == blockController {
			return r.configured(at)(r.tx.ConfigureMicrogridController(mg, opts))
		}
		if len(block.Labels) != 1 {
			return fmt.Errorf("%s: refueller needs a fuel label", at)
		}
		return r.configured(at)(r.tx.ConfigureRefueller(mg, block.Labels[0], opts))
	}

	if len(block.Labels) > 1 {
		return fmt.Errorf("%s: %s takes at most one label", at, block.Type)
	}
	name := ""
	if len(block.Labels) == 1 {
		name = block.Labels[0]
	}
	opts, err := r.options(block.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", at, err)
	}
	entity, callLog, err := r.tx.Build(domain.EntityType(block.Type), parent, name, opts)
	r.result.Log.Merge(callLog)
	if err != nil {
		return fmt.Errorf("%s: build %s %q: %w", at, block.Type, name, err)
	}
	r.result.Entities = append(r.result.Entities, entity)
	for _, child := range block.Body.Blocks {
		if err := r.block(ctx, child, entity); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) configured(at string) func(*domain.Log, error) error {
	return func(l *domain.Log, err error) error {
		r.result.Log.Merge(l)
		if err != nil {
			return fmt.Errorf("%s: %w", at, err)
		}
		return nil
	}
}

// options evaluates the attributes of body in name order.
func (r *runner) options(body *hclsyntax.Body) (core.Options, error) {
	names := make([]string, 0, len(body.Attributes))
	for name := range body.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	opts := make(core.Options, len(names))
	for _, name := range names {
		v, diags := body.Attributes[name].Expr.Value(r.eval)
		if diags.HasErrors() {
			return nil, diags
		}
		gv, err := toGo(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		opts[name] = gv
	}
	return opts, nil
}
