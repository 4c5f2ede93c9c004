package assist

import (
	_ "embed"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Insurer is a known issuer whose legal name can be matched verbatim.
type Insurer struct {
	Name    string `yaml:"name"`
	Hint    string `yaml:"hint"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// Catalog holds the fixed vocabularies the rules consult.
type Catalog struct {
	Insurers   []Insurer `yaml:"insurers"`
	KnownMakes []string  `yaml:"known_makes"`
	BadPhrases []string  `yaml:"bad_phrases"`
}

// ParseCatalog decodes a YAML catalog and compiles its insurer patterns.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "assist: parse catalog")
	}
	for i := range c.Insurers {
		re, err := regexp.Compile(`(?i)` + c.Insurers[i].Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "assist: compile insurer pattern for %s", c.Insurers[i].Name)
		}
		c.Insurers[i].re = re
	}
	return &c, nil
}

var catalog = mustCatalog()

func mustCatalog() *Catalog {
	c, err := ParseCatalog(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	return catalog
}

// MatchInsurer returns the first catalog insurer whose legal name appears in text.
func (c *Catalog) MatchInsurer(text string) (Insurer, bool) {
	for _, ins := range c.Insurers {
		if ins.re != nil && ins.re.MatchString(text) {
			return ins, true
		}
	}
	return Insurer{}, false
}
