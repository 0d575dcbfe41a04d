// Package attributes decodes vector-layer tile payloads and turns each
// feature's attributes into normalized column/value pairs.
//
// Attribute extraction is best effort. Structured fields win; otherwise the
// tooltip markup is mined through a chain of heuristics, each tried only when
// the previous one found nothing, ending with the whole tooltip text as a
// single attribute.
package attributes

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Field is one structured key/value pair attached to a feature.
type Field struct {
	Key   string          `json:"Key"`
	Value json.RawMessage `json:"Value"`
}

// Feature is one element of a tile payload.
type Feature struct {
	WktGeometry string  `json:"WktGeometry"`
	TipHTML     string  `json:"TipHtml"`
	ResultData  []Field `json:"ResultData"`
}

type tilePayload struct {
	D *[]Feature `json:"d"`
}

// DecodeTile parses a raw tile response. A document without a "d" array is
// rejected.
func DecodeTile(raw []byte) ([]Feature, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, eris.New("empty payload")
	}
	var p tilePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrap(err, "decode tile payload")
	}
	if p.D == nil {
		return nil, eris.New(`payload has no "d" array`)
	}
	return *p.D, nil
}

// Attributes returns the feature's normalized attributes, preferring
// structured fields over the tooltip.
func (f Feature) Attributes() map[string]*string {
	if len(f.ResultData) > 0 {
		if attrs := fromFields(f.ResultData); len(attrs) > 0 {
			return attrs
		}
	}
	return FromTooltip(f.TipHTML)
}

func fromFields(fields []Field) map[string]*string {
	attrs := make(map[string]*string, len(fields))
	for _, fld := range fields {
		key := NormalizeKey(fld.Key)
		if key == "" {
			continue
		}
		attrs[key] = rawValue(fld.Value)
	}
	return attrs
}

// rawValue converts a JSON value into column text; null stays NULL.
func rawValue(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err == nil {
			return &s
		}
	}
	s = string(raw)
	return &s
}
