// Package repair turns possibly-malformed oracle text into a payload that
// satisfies a schema.Shape. Every required field is always present afterwards:
// values that are missing or cannot be coerced are taken from a stage-specific
// fallback payload, and when no JSON object can be decoded at all the whole
// fallback is used. Repair never returns an error.
package repair

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"arps/internal/logging"
	"arps/internal/schema"
)

// Payload is a validated response object. Values are canonical: string,
// float64, bool, []string or []Payload.
type Payload map[string]interface{}

// Has reports whether name is present.
func (p Payload) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// String returns the string at name or "".
func (p Payload) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Float returns the number at name or 0.
func (p Payload) Float(name string) float64 {
	f, _ := p[name].(float64)
	return f
}

// Bool returns the boolean at name or false.
func (p Payload) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

// Strings returns the string list at name (never nil).
func (p Payload) Strings(name string) []string {
	if l, ok := p[name].([]string); ok {
		return l
	}
	return []string{}
}

// Objects returns the object list at name (never nil).
func (p Payload) Objects(name string) []Payload {
	if l, ok := p[name].([]Payload); ok {
		return l
	}
	return []Payload{}
}

// Fallback builds the deterministic payload used when the oracle's answer is
// unusable. It must be a pure function of inputs the stage already knows.
type Fallback func() Payload

// Result is the outcome of ParseAndRepair.
type Result struct {
	Payload Payload
	// Degraded is true when no JSON object could be decoded and Payload is the
	// whole fallback.
	Degraded bool
	// Cause explains a degraded result.
	Cause error
	// Repaired lists required fields filled from the fallback.
	Repaired []string
	// Dropped counts invalid list elements that were discarded.
	Dropped int
}

// Clean reports whether the oracle's answer was used without substitution.
func (r Result) Clean() bool {
	return !r.Degraded && len(r.Repaired) == 0
}

// ParseAndRepair extracts, decodes and validates raw against shape, filling
// gaps from fallback.
func ParseAndRepair(raw string, shape schema.Shape, fallback Fallback) Result {
	var fb Payload
	fallbackPayload := func() Payload {
		if fb == nil {
			fb = normalizeFallback(shape, fallback)
		}
		return fb
	}

	obj, err := decodeObject(raw)
	if err != nil {
		logging.RepairWarn("oracle output unusable (%v); using fallback payload", err)
		return Result{Payload: fallbackPayload(), Degraded: true, Cause: err, Repaired: shape.Required()}
	}

	out := Payload{}
	res := Result{Payload: out}
	for _, f := range shape.Fields {
		v, ok := coerceField(f, obj[f.Name], &res.Dropped)
		if ok {
			out[f.Name] = v
			continue
		}
		if !f.Required {
			continue
		}
		out[f.Name] = fallbackPayload()[f.Name]
		res.Repaired = append(res.Repaired, f.Name)
	}
	if len(res.Repaired) > 0 || res.Dropped > 0 {
		logging.RepairDebug("repaired fields=%v dropped_elements=%d", res.Repaired, res.Dropped)
	}
	return res
}

func decodeObject(raw string) (map[string]interface{}, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, errors.Wrap(err, "decode oracle JSON")
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.Newf("oracle JSON is %T, want object", v)
	}
	return obj, nil
}

// normalizeFallback coerces the fallback through the same shape so its values
// are canonical, and fills anything it leaves out with the kind's zero value.
func normalizeFallback(shape schema.Shape, fallback Fallback) Payload {
	var src Payload
	if fallback != nil {
		src = fallback()
	}
	out := Payload{}
	dropped := 0
	for _, f := range shape.Fields {
		if v, ok := coerceField(f, src[f.Name], &dropped); ok {
			out[f.Name] = v
		} else if f.Required {
			out[f.Name] = zeroValue(f.Kind)
		}
	}
	return out
}

func zeroValue(k schema.Kind) interface{} {
	switch k {
	case schema.KindNumber:
		return float64(0)
	case schema.KindBool:
		return false
	case schema.KindStringList:
		return []string{}
	case schema.KindObjectList:
		return []Payload{}
	default:
		return ""
	}
}

// coerceField validates one value. Required string fields reject blank text and
// required object lists reject emptiness.
func coerceField(f schema.Field, v interface{}, dropped *int) (interface{}, bool) {
	if v == nil {
		return nil, false
	}
	switch f.Kind {
	case schema.KindString:
		s, ok := AsString(v)
		if !ok {
			return nil, false
		}
		if len(f.Enum) > 0 {
			norm := strings.ToLower(strings.TrimSpace(s))
			if !f.AllowsValue(norm) {
				return nil, false
			}
			return norm, true
		}
		if f.Required && strings.TrimSpace(s) == "" {
			return nil, false
		}
		return s, true
	case schema.KindNumber:
		return AsNumber(v)
	case schema.KindBool:
		return AsBool(v)
	case schema.KindStringList:
		// An empty list is a legitimate answer even for required fields.
		return AsStringList(v)
	case schema.KindObjectList:
		return coerceObjectList(f, v, dropped)
	default:
		return nil, false
	}
}

func coerceObjectList(f schema.Field, v interface{}, dropped *int) (interface{}, bool) {
	list, ok := asList(v)
	if !ok {
		return nil, false
	}
	var items schema.Shape
	if f.Items != nil {
		items = *f.Items
	}
	out := make([]Payload, 0, len(list))
	for _, el := range list {
		obj, ok := asObject(el)
		if !ok {
			*dropped++
			continue
		}
		p, ok := coerceItem(items, obj)
		if !ok {
			*dropped++
			continue
		}
		out = append(out, p)
	}
	if f.Required && len(out) == 0 {
		return nil, false
	}
	return out, true
}

// coerceItem validates one object-list element. A required item field that is
// invalid and has no Default invalidates the element.
func coerceItem(items schema.Shape, obj map[string]interface{}) (Payload, bool) {
	p := Payload{}
	var nested int
	for _, f := range items.Fields {
		if v, ok := coerceField(f, obj[f.Name], &nested); ok {
			p[f.Name] = v
			continue
		}
		if f.Default != nil {
			if v, ok := coerceField(schema.Field{Name: f.Name, Kind: f.Kind, Items: f.Items}, f.Default, &nested); ok {
				p[f.Name] = v
				continue
			}
		}
		if f.Required {
			return nil, false
		}
	}
	return p, true
}
