package constraints

import (
	"fmt"

	"prex/internal/schema"
)

// PredView is the serialization form of one predicate. Views travel
// through JSON and msgpack, so decoding has to cope with whatever number
// types those decoders hand back.
type PredView struct {
	Kind  string `json:"kind" msgpack:"kind"`
	Align uint32 `json:"align,omitempty" msgpack:"align,omitempty"`
	Op    string `json:"op,omitempty" msgpack:"op,omitempty"`
	Bits  uint32 `json:"bits,omitempty" msgpack:"bits,omitempty"`
	Value int64  `json:"value,omitempty" msgpack:"value,omitempty"`
}

const (
	predKindAligned = "aligned"
	predKindCompare = "compare"
)

// TagOf projects a predicate set into its view form. Empty sets project
// to nil so minimal nodes serialize without a tag field.
func TagOf(ps Preds) any {
	if len(ps) == 0 {
		return nil
	}
	out := make([]PredView, 0, len(ps))
	for _, p := range ps {
		switch p.Kind {
		case PredAligned:
			out = append(out, PredView{Kind: predKindAligned, Align: p.Align})
		case PredCompare:
			out = append(out, PredView{Kind: predKindCompare, Op: p.Op.String(), Bits: p.Bits, Value: p.Value})
		default:
			panic(fmt.Sprintf("constraints: cannot serialize predicate kind %d", p.Kind))
		}
	}
	return out
}

// DecodeTag rebuilds a predicate set from its view form. It accepts the
// in-memory []PredView as well as the generic list-of-maps that JSON and
// msgpack decoding produce.
func DecodeTag(_ schema.TypeID, raw any) (Preds, error) {
	if raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []PredView:
		out := make(Preds, 0, len(v))
		for _, pv := range v {
			p, err := decodePredView(pv)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	case []any:
		out := make(Preds, 0, len(v))
		for _, item := range v {
			pv, err := predViewFromMap(item)
			if err != nil {
				return nil, err
			}
			p, err := decodePredView(pv)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tag is %T, expected a predicate list", raw)
	}
}

func decodePredView(pv PredView) (Pred, error) {
	switch pv.Kind {
	case predKindAligned:
		return Aligned(pv.Align), nil
	case predKindCompare:
		op, err := ParseCmpOp(pv.Op)
		if err != nil {
			return Pred{}, err
		}
		return Compare(op, pv.Bits, pv.Value), nil
	default:
		return Pred{}, fmt.Errorf("unknown predicate kind %q", pv.Kind)
	}
}

func predViewFromMap(item any) (PredView, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return PredView{}, fmt.Errorf("predicate is %T, expected a map", item)
	}
	var pv PredView
	for key, val := range m {
		switch key {
		case "kind":
			s, ok := val.(string)
			if !ok {
				return PredView{}, fmt.Errorf("predicate kind is %T, expected a string", val)
			}
			pv.Kind = s
		case "align":
			n, err := asUint32(val)
			if err != nil {
				return PredView{}, fmt.Errorf("align: %w", err)
			}
			pv.Align = n
		case "op":
			s, ok := val.(string)
			if !ok {
				return PredView{}, fmt.Errorf("predicate op is %T, expected a string", val)
			}
			pv.Op = s
		case "bits":
			n, err := asUint32(val)
			if err != nil {
				return PredView{}, fmt.Errorf("bits: %w", err)
			}
			pv.Bits = n
		case "value":
			n, err := asInt64(val)
			if err != nil {
				return PredView{}, fmt.Errorf("value: %w", err)
			}
			pv.Value = n
		default:
			return PredView{}, fmt.Errorf("unknown predicate field %q", key)
		}
	}
	return pv, nil
}

// asUint32 and asInt64 absorb the numeric types different decoders
// produce: encoding/json hands back float64, msgpack the various int
// widths.
func asUint32(v any) (uint32, error) {
	n, err := asInt64(v)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > int64(^uint32(0)) {
		return 0, fmt.Errorf("%d out of uint32 range", n)
	}
	return uint32(n), nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > 1<<63-1 {
			return 0, fmt.Errorf("%d out of int64 range", n)
		}
		return int64(n), nil
	case float64:
		i := int64(n)
		if float64(i) != n {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%T is not a number", v)
	}
}
