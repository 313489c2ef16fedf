package sqlite

import (
	"database/sql/driver"
	"fmt"

	"gonum.org/v1/gonum/stat"
	"modernc.org/sqlite"
)

// StdDevFunction is the aggregate the algorithm_performance view uses for
// the runtime sample standard deviation. It ignores NULLs and yields NULL for
// fewer than two values, like Postgres STDDEV_SAMP.
const StdDevFunction = "bench_stddev_samp"

func init() {
	sqlite.MustRegisterFunction(StdDevFunction, &sqlite.FunctionImpl{
		NArgs:         1,
		Deterministic: true,
		MakeAggregate: func(sqlite.FunctionContext) (sqlite.AggregateFunction, error) {
			return &stdDevAggregate{}, nil
		},
	})
}

// stdDevAggregate keeps the group's values so the deviation is computed in
// two passes; the one-pass sum-of-squares form cancels for large runtimes
// with a small spread.
type stdDevAggregate struct {
	values []float64
}

func aggregateArg(args []driver.Value) (float64, bool, error) {
	switch v := args[0].(type) {
	case nil:
		return 0, false, nil
	case int64:
		return float64(v), true, nil
	case float64:
		return v, true, nil
	default:
		return 0, false, fmt.Errorf("%s: unsupported argument %T", StdDevFunction, args[0])
	}
}

func (a *stdDevAggregate) Step(_ *sqlite.FunctionContext, args []driver.Value) error {
	x, ok, err := aggregateArg(args)
	if ok {
		a.values = append(a.values, x)
	}
	return err
}

func (a *stdDevAggregate) WindowInverse(_ *sqlite.FunctionContext, args []driver.Value) error {
	x, ok, err := aggregateArg(args)
	if err != nil || !ok {
		return err
	}
	for i, v := range a.values {
		if v == x {
			a.values = append(a.values[:i], a.values[i+1:]...)
			break
		}
	}
	return nil
}

func (a *stdDevAggregate) WindowValue(*sqlite.FunctionContext) (driver.Value, error) {
	if len(a.values) < 2 {
		return nil, nil
	}
	return stat.StdDev(a.values, nil), nil
}

func (a *stdDevAggregate) Final(*sqlite.FunctionContext) {}
