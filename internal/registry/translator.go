package registry

import (
	"io"
	"strings"

	"github.com/clbanning/mxj/v2"
)

func init() {
	// Responses are decoded to UTF-8 before parsing, so the ISO-8859-1
	// declaration they carry must not trigger a second conversion.
	mxj.XmlCharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
}

// Status tags a translated response
type Status string

const (
	StatusOK  Status = "OK"
	StatusNOK Status = "NOK"
)

// Result is one translated registry response. For NOK responses Data holds
// the whole parsed tree.
type Result struct {
	Status Status
	Data   map[string]any
}

// Err returns ErrProtocol for NOK results
func (r *Result) Err() error {
	if r.Status == StatusNOK {
		return ErrProtocol
	}
	return nil
}

// Translate decodes a raw registry response and extracts the fields of the
// given variant.
func Translate(v Variant, raw []byte) (*Result, error) {
	text, err := DecodeLatin1(raw)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	tree, err := mxj.NewMapXml([]byte(text))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	if _, err := tree.ValueForPath(errorCodePath); err == nil {
		return &Result{Status: StatusNOK, Data: tree.Old()}, nil
	}

	return &Result{Status: StatusOK, Data: extract(tree, v)}, nil
}

// extract merges the variant's elements into one flat map. Absent paths
// contribute nothing.
func extract(tree mxj.Map, v Variant) map[string]any {
	e := extractionFor(v)
	out := make(map[string]any)

	for _, name := range e.elements {
		val, err := tree.ValueForPath(dataRootPath + "." + e.message + "." + name)
		if err != nil || val == nil {
			continue
		}
		// repeated elements: the first occurrence is authoritative
		if list, ok := val.([]any); ok {
			if len(list) == 0 {
				continue
			}
			val = list[0]
		}

		switch node := stripMarkup(val).(type) {
		case map[string]any:
			for k, child := range node {
				out[k] = child
			}
		case nil:
		default:
			out[name] = node
		}
	}
	return out
}

// stripMarkup removes the attribute ("-name") and character data ("#text")
// keys mxj adds for attributed or mixed-content elements. An element left
// with only text collapses to that text; one left with nothing becomes nil.
func stripMarkup(v any) any {
	switch node := v.(type) {
	case map[string]any:
		clean := make(map[string]any, len(node))
		for k, child := range node {
			if isMarkupKey(k) {
				continue
			}
			clean[k] = stripMarkup(child)
		}
		if len(clean) > 0 {
			return clean
		}
		if text, ok := node[textKey]; ok {
			return text
		}
		return nil
	case []any:
		list := make([]any, 0, len(node))
		for _, item := range node {
			list = append(list, stripMarkup(item))
		}
		return list
	default:
		return v
	}
}

const textKey = "#text"

func isMarkupKey(k string) bool {
	return strings.HasPrefix(k, "-") || strings.HasPrefix(k, "#")
}

// Merge combines results in order; later keys overwrite earlier ones
func Merge(results ...*Result) map[string]any {
	out := make(map[string]any)
	for _, r := range results {
		if r == nil {
			continue
		}
		for k, v := range r.Data {
			out[k] = v
		}
	}
	return out
}
