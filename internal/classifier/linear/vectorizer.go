// Package linear runs TF-IDF + linear classifiers exported to JSON.
package linear

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenPattern matches runs of two or more word characters, the Unicode
// reading of \b\w\w+\b.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{2,}`)

// Vectorizer turns text into a sparse TF-IDF vector over a fixed vocabulary.
type Vectorizer struct {
	vocabulary   map[string]int
	idf          []float64
	lowercase    bool
	stripAccents string
	minN, maxN   int
	sublinearTF  bool
	norm         string
	nFeatures    int
}

// Feature is one non-zero column of a vector.
type Feature struct {
	Column int
	Value  float64
}

func newVectorizer(a *Artifact) (*Vectorizer, error) {
	if len(a.Vocabulary) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	n := 0
	for term, col := range a.Vocabulary {
		if col < 0 {
			return nil, fmt.Errorf("term %q has negative column %d", term, col)
		}
		if col+1 > n {
			n = col + 1
		}
	}
	if len(a.IDF) > 0 && len(a.IDF) != n {
		return nil, fmt.Errorf("idf has %d entries, vocabulary needs %d", len(a.IDF), n)
	}
	minN, maxN := a.NgramRange[0], a.NgramRange[1]
	if minN == 0 && maxN == 0 {
		minN, maxN = 1, 1
	}
	if minN < 1 || maxN < minN {
		return nil, fmt.Errorf("invalid ngram_range [%d,%d]", minN, maxN)
	}
	switch a.Norm {
	case "", "l1", "l2", "none":
	default:
		return nil, fmt.Errorf("unsupported norm %q", a.Norm)
	}
	switch a.StripAccents {
	case "", "unicode", "ascii":
	default:
		return nil, fmt.Errorf("unsupported strip_accents %q", a.StripAccents)
	}
	lower := true
	if a.Lowercase != nil {
		lower = *a.Lowercase
	}
	return &Vectorizer{
		vocabulary:   a.Vocabulary,
		idf:          a.IDF,
		lowercase:    lower,
		stripAccents: a.StripAccents,
		minN:         minN,
		maxN:         maxN,
		sublinearTF:  a.SublinearTF,
		norm:         a.Norm,
		nFeatures:    n,
	}, nil
}

// NumFeatures is the width of the dense vector.
func (v *Vectorizer) NumFeatures() int { return v.nFeatures }

// preprocess folds compatibility characters with NFKC before accent
// stripping and lowercasing. scikit-learn's TfidfVectorizer skips that step,
// so full-width letters and ligatures ("ｃｏｆｆｅｅ", "ﬁ") can tokenize here
// differently from how the exporting pipeline saw them at training time.
// Training text is expected to be NFKC-clean already, which makes the fold
// a no-op for it.
func (v *Vectorizer) preprocess(text string) string {
	text = norm.NFKC.String(text)
	switch v.stripAccents {
	case "unicode":
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if s, _, err := transform.String(t, text); err == nil {
			text = s
		}
	case "ascii":
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(func(r rune) bool {
			return r > unicode.MaxASCII
		})))
		if s, _, err := transform.String(t, text); err == nil {
			text = s
		}
	}
	if v.lowercase {
		text = cases.Lower(language.Und).String(text)
	}
	return text
}

// Tokens returns the word tokens of text after normalization.
func (v *Vectorizer) Tokens(text string) []string {
	return tokenPattern.FindAllString(v.preprocess(text), -1)
}

// Terms returns the word n-grams of text within the configured range.
func (v *Vectorizer) Terms(text string) []string {
	tokens := v.Tokens(text)
	if v.maxN == 1 {
		return tokens
	}
	var terms []string
	if v.minN == 1 {
		terms = append(terms, tokens...)
	}
	lo := v.minN
	if lo == 1 {
		lo = 2
	}
	for n := lo; n <= v.maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+n], " "))
		}
	}
	return terms
}

// Transform returns the non-zero TF-IDF features of text. Terms outside the
// vocabulary are ignored.
func (v *Vectorizer) Transform(text string) []Feature {
	counts := map[int]float64{}
	for _, term := range v.Terms(text) {
		if col, ok := v.vocabulary[term]; ok {
			counts[col]++
		}
	}
	features := make([]Feature, 0, len(counts))
	for col, tf := range counts {
		if v.sublinearTF {
			tf = 1 + math.Log(tf)
		}
		if len(v.idf) > 0 {
			tf *= v.idf[col]
		}
		features = append(features, Feature{Column: col, Value: tf})
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Column < features[j].Column })

	var total float64
	switch v.norm {
	case "", "l2":
		for _, f := range features {
			total += f.Value * f.Value
		}
		total = math.Sqrt(total)
	case "l1":
		for _, f := range features {
			total += math.Abs(f.Value)
		}
	}
	if total > 0 {
		for i := range features {
			features[i].Value /= total
		}
	}
	return features
}

// Dense returns the float32 dense form of the TF-IDF vector of text.
func (v *Vectorizer) Dense(text string) []float32 {
	out := make([]float32, v.nFeatures)
	for _, f := range v.Transform(text) {
		out[f.Column] = float32(f.Value)
	}
	return out
}
