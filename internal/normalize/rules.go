package normalize

import (
	"regexp"

	"github.com/lkaczmarek/paragon-pipeline/internal/receipt"
)

// staticRule maps raw-name patterns to a canonical product name. Patterns are
// case-insensitive substring matches anywhere in the raw name; the first rule
// with a matching pattern wins.
type staticRule struct {
	canonical string
	patterns  []*regexp.Regexp
}

func rule(canonical string, patterns ...string) staticRule {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
	}
	return staticRule{canonical: canonical, patterns: compiled}
}

// staticRules is the ordered dictionary. SKIP entries come first so known
// non-products (bags, deposits, fees) are excluded before anything else can
// claim them.
var staticRules = []staticRule{
	rule(receipt.SkipMarker,
		`reklam[óo]wka`,
		`torba\b`,
		`torebka foliowa`,
		`kaucja`,
		`op[łl]ata recykling`,
		`op[łl]ata opakowan`,
		`butelka zwrotna`,
	),
	rule("Mleko", `mleko`, `ml[ \.]*3[,.]2%`),
	rule("Masło", `mas[łl]o`),
	rule("Jajka", `jaja\b`, `jajka`),
	rule("Chleb", `chleb`, `bu[łl]ka`, `pieczywo`),
	rule("Ser żółty", `ser\s+[żz][óo][łl]ty`, `gouda`, `edamski`),
	rule("Jogurt", `jogurt`),
	rule("Banany", `banan`),
	rule("Jabłka", `jab[łl]k`),
	rule("Pomidory", `pomidor`),
	rule("Ziemniaki", `ziemniak`),
	rule("Woda mineralna", `woda\s+miner`, `woda\s+niegaz`, `woda\s+gaz`),
	rule("Kawa", `kawa\b`, `kawy\b`),
	rule("Herbata", `herbata`),
	rule("Cukier", `cukier`),
	rule("Mąka", `m[ąa]ka`),
	rule("Makaron", `makaron`),
	rule("Ryż", `ry[żz]\b`),
	rule("Papier toaletowy", `papier\s+toalet`),
}

// lookupStaticRule returns the canonical name for a raw item name, or "" when
// no rule matches.
func lookupStaticRule(rawName string) string {
	for _, r := range staticRules {
		for _, re := range r.patterns {
			if re.MatchString(rawName) {
				return r.canonical
			}
		}
	}
	return ""
}
