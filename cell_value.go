package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CellKind classifies the payload of a tagged cell by its wire shape.
// The tag itself is backend-defined and never interpreted.
type CellKind int

const (
	KindInvalid CellKind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindComposite
)

func (k CellKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindComposite:
		return "composite"
	default:
		return "invalid"
	}
}

// CellValue is a decoded {"<Tag>": payload} wrapper.
type CellValue struct {
	tag     string
	kind    CellKind
	str     string
	num     json.Number
	boolean bool
	raw     json.RawMessage

	// set when kind is KindInvalid
	problem string
}

func NewStringCell(tag, value string) CellValue {
	return CellValue{tag: tag, kind: KindString, str: value}
}

func NewNumberCell(tag string, value json.Number) CellValue {
	return CellValue{tag: tag, kind: KindNumber, num: value}
}

func NewIntCell(tag string, value int64) CellValue {
	return NewNumberCell(tag, json.Number(strconv.FormatInt(value, 10)))
}

func NewFloatCell(tag string, value float64) CellValue {
	return NewNumberCell(tag, json.Number(strconv.FormatFloat(value, 'g', -1, 64)))
}

func NewBoolCell(tag string, value bool) CellValue {
	return CellValue{tag: tag, kind: KindBool, boolean: value}
}

func NewNullCell(tag string) CellValue {
	return CellValue{tag: tag, kind: KindNull}
}

func (c CellValue) Tag() string {
	return c.tag
}

func (c CellValue) Kind() CellKind {
	return c.kind
}

func (c CellValue) Valid() bool {
	return c.kind != KindInvalid
}

// Payload returns the unwrapped scalar: string, json.Number, bool,
// json.RawMessage or nil.
func (c CellValue) Payload() interface{} {
	switch c.kind {
	case KindString:
		return c.str
	case KindNumber:
		return c.num
	case KindBool:
		return c.boolean
	case KindComposite:
		return c.raw
	default:
		return nil
	}
}

// Text is the display form of the payload. Null renders as the empty string.
func (c CellValue) Text() string {
	switch c.kind {
	case KindString:
		return c.str
	case KindNumber:
		return c.num.String()
	case KindBool:
		return strconv.FormatBool(c.boolean)
	case KindComposite:
		return string(c.raw)
	default:
		return ""
	}
}

func (c CellValue) Equal(other CellValue) bool {
	if c.tag != other.tag || c.kind != other.kind {
		return false
	}
	switch c.kind {
	case KindString:
		return c.str == other.str
	case KindNumber:
		return c.num == other.num
	case KindBool:
		return c.boolean == other.boolean
	case KindComposite:
		return bytes.Equal(c.raw, other.raw)
	case KindInvalid:
		return c.problem == other.problem
	default:
		return true
	}
}

// Rewrap builds the committed value for an edit of this cell: the input is
// parsed according to the original payload kind and wrapped in the original tag.
func (c CellValue) Rewrap(input string) (CellValue, error) {
	trimmed := strings.TrimSpace(input)

	switch c.kind {
	case KindInvalid:
		return CellValue{}, fmt.Errorf("cannot edit malformed cell: %s", c.problem)
	case KindString:
		return NewStringCell(c.tag, input), nil
	case KindNumber:
		if strings.EqualFold(trimmed, "null") {
			return NewNullCell(c.tag), nil
		}
		if !isJSONNumber(trimmed) {
			return CellValue{}, fmt.Errorf("%s cell expects a number, got %q", c.tag, input)
		}
		return NewNumberCell(c.tag, json.Number(trimmed)), nil
	case KindBool:
		if strings.EqualFold(trimmed, "null") {
			return NewNullCell(c.tag), nil
		}
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return CellValue{}, fmt.Errorf("%s cell expects true or false, got %q", c.tag, input)
		}
		return NewBoolCell(c.tag, b), nil
	case KindComposite:
		if !json.Valid([]byte(trimmed)) {
			return CellValue{}, fmt.Errorf("%s cell expects JSON, got %q", c.tag, input)
		}
		return CellValue{tag: c.tag, kind: KindComposite, raw: json.RawMessage(trimmed)}, nil
	}

	// Null cells carry no shape to follow, so infer one from the input.
	if trimmed == "" || strings.EqualFold(trimmed, "null") {
		return NewNullCell(c.tag), nil
	}
	if strings.EqualFold(trimmed, "true") {
		return NewBoolCell(c.tag, true), nil
	}
	if strings.EqualFold(trimmed, "false") {
		return NewBoolCell(c.tag, false), nil
	}
	if isJSONNumber(trimmed) {
		return NewNumberCell(c.tag, json.Number(trimmed)), nil
	}
	return NewStringCell(c.tag, input), nil
}

// isJSONNumber reports whether s is a JSON number literal. strconv accepts
// NaN, Inf, a leading plus and hex floats, none of which survive encoding.
func isJSONNumber(s string) bool {
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return false
	}
	var v interface{}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil || dec.More() {
		return false
	}
	_, ok := v.(json.Number)
	return ok
}

func (c *CellValue) UnmarshalJSON(data []byte) error {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		*c = CellValue{problem: fmt.Sprintf("not a tagged object: %s", truncateRaw(data))}
		return nil
	}

	if len(wrapper) != 1 {
		tags := make([]string, 0, len(wrapper))
		for tag := range wrapper {
			tags = append(tags, tag)
		}
		*c = CellValue{problem: fmt.Sprintf("expected exactly one tag, found %d %v", len(wrapper), tags)}
		return nil
	}

	for tag, payload := range wrapper {
		*c = decodePayload(tag, payload)
	}
	return nil
}

func decodePayload(tag string, payload json.RawMessage) CellValue {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NewNullCell(tag)
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return CellValue{tag: tag, problem: err.Error()}
		}
		return NewStringCell(tag, s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return CellValue{tag: tag, problem: err.Error()}
		}
		return NewBoolCell(tag, b)
	case '{', '[':
		raw := make(json.RawMessage, len(trimmed))
		copy(raw, trimmed)
		return CellValue{tag: tag, kind: KindComposite, raw: raw}
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return CellValue{tag: tag, problem: err.Error()}
		}
		return NewNumberCell(tag, n)
	}
}

func (c CellValue) MarshalJSON() ([]byte, error) {
	if c.kind == KindInvalid {
		return nil, fmt.Errorf("cannot encode malformed cell: %s", c.problem)
	}

	var payload interface{}
	switch c.kind {
	case KindString:
		payload = c.str
	case KindNumber:
		payload = c.num
	case KindBool:
		payload = c.boolean
	case KindComposite:
		payload = c.raw
	}
	return json.Marshal(map[string]interface{}{c.tag: payload})
}

func truncateRaw(data []byte) string {
	s := string(data)
	if len(s) > 40 {
		return s[:37] + "..."
	}
	return s
}
