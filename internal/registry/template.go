package registry

import (
	"bytes"
	"embed"
	"encoding/xml"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"vehicle-lookup-api/config"
)

//go:embed templates/*.xml
var embeddedTemplates embed.FS

const (
	regNumberTemplate = "query.xml"
	vinTemplate       = "query_vin.xml"
)

// Variant is a registry query shape
type Variant string

const (
	VariantHistory  Variant = "850" // historia
	VariantExtended Variant = "840" // laaja
	VariantLimited  Variant = "820" // suppea
)

// Query identifies one registry request. Either RegNumber or VIN is set.
type Query struct {
	RegNumber string
	VIN       string
	Variant   Variant
	RegType   string
}

func (q Query) withDefaults() Query {
	if q.Variant == "" {
		q.Variant = VariantExtended
	}
	if q.RegType == "" {
		q.RegType = "1"
	}
	return q
}

// Templates renders registry requests. Both templates and the secrets are
// fixed at construction.
type Templates struct {
	byRegNumber string
	byVIN       string
	secrets     [config.SecretCount]string
}

// LoadTemplates reads query.xml and query_vin.xml from dir, or uses the
// built-in templates when dir is empty.
func LoadTemplates(dir string, secrets [config.SecretCount]string) (*Templates, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(filepath.Clean(dir))
	}

	reg, err := fs.ReadFile(fsys, regNumberTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", regNumberTemplate, err)
	}
	vin, err := fs.ReadFile(fsys, vinTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", vinTemplate, err)
	}

	return &Templates{
		byRegNumber: string(reg),
		byVIN:       string(vin),
		secrets:     secrets,
	}, nil
}

// Render fills the template matching q. The VIN template is used whenever
// a VIN is given.
func (t *Templates) Render(q Query) string {
	q = q.withDefaults()

	tmpl := t.byRegNumber
	if q.VIN != "" {
		tmpl = t.byVIN
	}

	pairs := make([]string, 0, 2*(config.SecretCount+4))
	for i, s := range t.secrets {
		pairs = append(pairs, fmt.Sprintf("#SECRET%d#", i+1), s)
	}
	pairs = append(pairs,
		"#REGNUMBER#", escape(q.RegNumber),
		"#VIN#", escape(q.VIN),
		"#QUERYTYPE#", escape(string(q.Variant)),
		"#REGTYPE#", escape(q.RegType),
	)
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// escape makes caller input safe to place in element text
func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
