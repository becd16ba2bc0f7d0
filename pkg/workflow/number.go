package workflow

import (
	"encoding/json"
	"fmt"
	"math"
)

// number keeps integer arithmetic exact until a float operand appears.
type number struct {
	i        int64
	f        float64
	integral bool
}

func toNumber(v any) (number, error) {
	switch n := v.(type) {
	case int:
		return number{i: int64(n), integral: true}, nil
	case int8:
		return number{i: int64(n), integral: true}, nil
	case int16:
		return number{i: int64(n), integral: true}, nil
	case int32:
		return number{i: int64(n), integral: true}, nil
	case int64:
		return number{i: n, integral: true}, nil
	case uint:
		return number{i: int64(n), integral: true}, nil
	case uint8:
		return number{i: int64(n), integral: true}, nil
	case uint16:
		return number{i: int64(n), integral: true}, nil
	case uint32:
		return number{i: int64(n), integral: true}, nil
	case uint64:
		if n > math.MaxInt64 {
			return number{f: float64(n)}, nil
		}
		return number{i: int64(n), integral: true}, nil
	case float32:
		return number{f: float64(n)}, nil
	case float64:
		return number{f: n}, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return number{i: i, integral: true}, nil
		}
		f, err := n.Float64()
		if err != nil {
			return number{}, fmt.Errorf("not a number: %q", n)
		}
		return number{f: f}, nil
	default:
		return number{}, fmt.Errorf("not a number: %v (%T)", v, v)
	}
}

func (n number) float() float64 {
	if n.integral {
		return float64(n.i)
	}
	return n.f
}

func (n number) add(o number) number {
	if n.integral && o.integral {
		return number{i: n.i + o.i, integral: true}
	}
	return number{f: n.float() + o.float()}
}

func (n number) mul(o number) number {
	if n.integral && o.integral {
		return number{i: n.i * o.i, integral: true}
	}
	return number{f: n.float() * o.float()}
}

// value returns an int for integral results and a float64 otherwise.
func (n number) value() any {
	if n.integral {
		return int(n.i)
	}
	return n.f
}
