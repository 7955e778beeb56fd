package leadgen

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywordsYAML []byte

// KeywordCatalog maps industries to their ordered search phrases.
type KeywordCatalog struct {
	Default    []string            `yaml:"default"`
	Industries map[string][]string `yaml:"industries"`
}

// DefaultKeywordCatalog returns the built-in catalog.
func DefaultKeywordCatalog() *KeywordCatalog {
	cat, err := parseKeywordCatalog(defaultKeywordsYAML)
	if err != nil {
		panic(err) // embedded file is validated by tests
	}
	return cat
}

// LoadKeywordCatalog reads a catalog from a YAML file. Industries missing
// from the file fall back to the built-in catalog; an empty default list
// is replaced by the built-in default.
func LoadKeywordCatalog(path string) (*KeywordCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "keywords: read %s", path)
	}
	override, err := parseKeywordCatalog(data)
	if err != nil {
		return nil, err
	}

	base := DefaultKeywordCatalog()
	if len(override.Default) > 0 {
		base.Default = override.Default
	}
	for industry, kws := range override.Industries {
		if len(kws) > 0 {
			base.Industries[industry] = kws
		}
	}
	return base, nil
}

func parseKeywordCatalog(data []byte) (*KeywordCatalog, error) {
	var cat KeywordCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, eris.Wrap(err, "keywords: parse catalog")
	}
	normalized := make(map[string][]string, len(cat.Industries))
	for industry, kws := range cat.Industries {
		normalized[industryKey(industry)] = kws
	}
	cat.Industries = normalized
	return &cat, nil
}

// Keywords returns the phrases for industry, or the default list when the
// industry is unknown. The result is never empty.
func (c *KeywordCatalog) Keywords(industry string) []string {
	if kws, ok := c.Industries[industryKey(industry)]; ok && len(kws) > 0 {
		return kws
	}
	if len(c.Default) > 0 {
		return c.Default
	}
	return []string{"business"}
}

func industryKey(industry string) string {
	k := strings.ToLower(strings.TrimSpace(industry))
	return strings.Join(strings.Fields(strings.ReplaceAll(k, "-", " ")), "_")
}
