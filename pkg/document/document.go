// Package document provides an order-preserving view of a JSON object with typed access
// to the toggle field. Only the toggle value is interpreted, all other members are kept
// as raw JSON and written back in their original order.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/umputun/kftoggle/pkg/domain"
)

// ToggleKey is the name of the managed field
const ToggleKey = "m_Enable"

// indent used for written documents
const indent = "    "

// Document is a top-level JSON object with members kept in file order
type Document struct {
	fields *orderedmap.OrderedMap[string, json.RawMessage]
}

// New makes an empty document
func New() *Document {
	return &Document{fields: orderedmap.New[string, json.RawMessage]()}
}

// Parse decodes data into a document. Data must be a single JSON object.
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("invalid json")
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("top-level value is not an object")
	}

	doc := New()
	if err := doc.fields.UnmarshalJSON(trimmed); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return doc, nil
}

// Toggle returns the current toggle value. The second result is false if the field
// is missing or holds something other than 0/1 (booleans are accepted as well).
func (d *Document) Toggle() (domain.State, bool) {
	raw, ok := d.fields.Get(ToggleKey)
	if !ok {
		return domain.Disabled, false
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.Disabled, false
	}
	switch val := v.(type) {
	case float64:
		switch val {
		case 0:
			return domain.Disabled, true
		case 1:
			return domain.Enabled, true
		}
	case bool:
		if val {
			return domain.Enabled, true
		}
		return domain.Disabled, true
	}
	return domain.Disabled, false
}

// SetToggle sets the toggle field, a missing field is appended after existing members
func (d *Document) SetToggle(s domain.State) {
	d.fields.Set(ToggleKey, json.RawMessage(strconv.Itoa(int(s))))
}

// Keys returns member names in document order
func (d *Document) Keys() []string {
	keys := make([]string, 0, d.fields.Len())
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Raw returns raw JSON of a member
func (d *Document) Raw(key string) (json.RawMessage, bool) {
	return d.fields.Get(key)
}

// Clone makes a deep copy of the document
func (d *Document) Clone() *Document {
	res := New()
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		res.fields.Set(pair.Key, append(json.RawMessage(nil), pair.Value...))
	}
	return res
}

// Bytes encodes the document indented with four spaces. Non-ASCII characters and
// HTML-sensitive characters in keys are written as is.
func (d *Document) Bytes() ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	first := true
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !first {
			compact.WriteByte(',')
		}
		first = false

		key, err := encodeString(pair.Key)
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", pair.Key, err)
		}
		compact.Write(key)
		compact.WriteByte(':')
		if err := json.Compact(&compact, pair.Value); err != nil {
			return nil, fmt.Errorf("encode value of %q: %w", pair.Key, err)
		}
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", indent); err != nil {
		return nil, fmt.Errorf("indent document: %w", err)
	}
	return out.Bytes(), nil
}

func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
