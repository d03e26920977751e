package main

import (
	"github.com/pkg/errors"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// recordFilter is a compiled --where expression. A nil filter keeps every
// record.
type recordFilter struct {
	src  string
	expr syntax.Expr
	opts *syntax.FileOptions
}

// compileFilter parses a Starlark expression such as
//
//	counter_mask != "0" and "LOAD" in name
//
// An empty source yields a nil filter.
func compileFilter(src string) (*recordFilter, error) {
	if src == "" {
		return nil, nil
	}
	opts := &syntax.FileOptions{}
	expr, err := opts.ParseExpr("where", src, 0)
	if err != nil {
		return nil, &argumentError{err: errors.Wrap(err, "--where")}
	}
	return &recordFilter{src: src, expr: expr, opts: opts}, nil
}

func (f *recordFilter) keep(e eventRecord) (bool, error) {
	if f == nil {
		return true, nil
	}
	env := starlark.StringDict{
		"name":         starlark.String(e.Name),
		"description":  starlark.String(e.Description),
		"code":         starlark.String(e.Code),
		"umask":        starlark.String(e.UMask),
		"msr_value":    starlark.String(e.MSRValue),
		"invert":       starlark.String(e.Invert),
		"any_thread":   starlark.String(e.AnyThread),
		"edge_detect":  starlark.String(e.EdgeDetect),
		"counter_mask": starlark.String(e.CounterMask),
	}
	thread := &starlark.Thread{Name: "where"}
	v, err := starlark.EvalExprOptions(f.opts, thread, f.expr, env)
	if err != nil {
		return false, errors.Wrapf(err, "--where %q on event %q", f.src, e.Name)
	}
	return bool(v.Truth()), nil
}
