package transform

import (
	"context"
	"fmt"
	"strings"

	sl "go.starlark.net/starlark"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/starlark"
)

// ExpressionConfig configures expression_parser. ListOfExpr holds one or
// more expressions; each result is written to a column named by the
// expression text plus Postfix.
type ExpressionConfig struct {
	ListOfExpr  dataset.ColumnList `mapstructure:"list_of_expr"`
	Postfix     string             `mapstructure:"postfix"`
	PrintImpact bool               `mapstructure:"print_impact"`
}

// ExpressionParser evaluates each expression row by row. Column names are
// the variables; a row where any referenced column is null yields null.
func (t *Transformer) ExpressionParser(ctx context.Context, ds *dataset.Dataset, cfg ExpressionConfig) (*dataset.Dataset, error) {
	if len(cfg.ListOfExpr) == 0 {
		return nil, fmt.Errorf("list_of_expr is required")
	}
	out := ds
	for _, src := range cfg.ListOfExpr {
		src = strings.TrimSpace(src)
		col, err := t.evaluate(ctx, ds, src)
		if err != nil {
			return nil, err
		}
		col.Name = src + cfg.Postfix
		if out, err = out.WithColumn(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *Transformer) evaluate(ctx context.Context, ds *dataset.Dataset, src string) (*dataset.Column, error) {
	params, err := starlark.Identifiers(src)
	if err != nil {
		return nil, err
	}
	var missing []string
	cols := make([]*dataset.Column, len(params))
	for j, p := range params {
		c, ok := ds.Column(p)
		if !ok {
			missing = append(missing, p)
			continue
		}
		cols[j] = c
	}
	if len(missing) > 0 {
		return nil, &dataset.UnknownColumnsError{Columns: missing}
	}
	expr, err := starlark.Compile(src, params)
	if err != nil {
		return nil, err
	}

	// rows with a null argument are not evaluated
	var rows []int
	for i := 0; i < ds.NumRows(); i++ {
		complete := true
		for _, c := range cols {
			if c.Values[i] == nil {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, i)
		}
	}
	results, err := t.rows.Eval(ctx, expr, len(rows), func(k int) []sl.Value {
		args := make([]sl.Value, len(cols))
		for j, c := range cols {
			// GoToStarlark covers every dataset value type
			args[j], _ = starlark.GoToStarlark(c.Values[rows[k]])
		}
		return args
	})
	if err != nil {
		return nil, err
	}

	values := make([]any, ds.NumRows())
	typ := dataset.DType("")
	for k, r := range results {
		v, err := starlark.ToGo(r)
		if err != nil {
			return nil, &starlark.EvalError{Expr: src, Message: err.Error()}
		}
		var vt dataset.DType
		switch v.(type) {
		case nil:
			continue
		case int64:
			vt = dataset.Integer
		case float64:
			vt = dataset.Double
		case bool:
			vt = dataset.Boolean
		default:
			vt = dataset.String
		}
		if typ == "" {
			typ = vt
		} else {
			typ = dataset.Widen(typ, vt)
		}
		values[rows[k]] = v
	}
	if typ == "" {
		typ = dataset.Double
	}
	for i, v := range values {
		values[i] = dataset.Cast(v, typ)
	}
	t.logger.Debug("expression evaluated", "expr", src, "rows", len(rows))
	return dataset.NewColumn(src, typ, values), nil
}
