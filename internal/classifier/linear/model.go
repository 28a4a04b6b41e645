package linear

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Artifact is the JSON export of a fitted TF-IDF vectorizer followed by a
// linear classifier. The classifier fields are optional when the file only
// carries the vectorizer.
type Artifact struct {
	Vocabulary   map[string]int `json:"vocabulary"`
	IDF          []float64      `json:"idf"`
	Lowercase    *bool          `json:"lowercase"`
	StripAccents string         `json:"strip_accents"`
	NgramRange   [2]int         `json:"ngram_range"`
	SublinearTF  bool           `json:"sublinear_tf"`
	Norm         string         `json:"norm"`

	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
	Classes   []int       `json:"classes"`
}

// Model is a linear classifier over TF-IDF features.
type Model struct {
	vec       *Vectorizer
	coef      [][]float64
	intercept []float64
	classes   []int
}

func readArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()
	a, err := decodeArtifact(f)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return a, nil
}

func decodeArtifact(r io.Reader) (*Artifact, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &a, nil
}

// Load reads a model artifact from path.
func Load(path string) (*Model, error) {
	a, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	return FromArtifact(a)
}

// LoadVectorizer reads only the vectorizer section of an artifact.
func LoadVectorizer(path string) (*Vectorizer, error) {
	a, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	return newVectorizer(a)
}

func Parse(r io.Reader) (*Model, error) {
	a, err := decodeArtifact(r)
	if err != nil {
		return nil, err
	}
	return FromArtifact(a)
}

func FromArtifact(a *Artifact) (*Model, error) {
	vec, err := newVectorizer(a)
	if err != nil {
		return nil, err
	}
	if len(a.Coef) == 0 {
		return nil, fmt.Errorf("model has no coefficients")
	}
	if len(a.Intercept) != len(a.Coef) {
		return nil, fmt.Errorf("intercept has %d entries, coef has %d rows", len(a.Intercept), len(a.Coef))
	}
	for i, row := range a.Coef {
		if len(row) != vec.NumFeatures() {
			return nil, fmt.Errorf("coef row %d has %d columns, want %d", i, len(row), vec.NumFeatures())
		}
	}
	switch {
	case len(a.Coef) == 1 && len(a.Classes) != 2:
		return nil, fmt.Errorf("binary model needs 2 classes, got %d", len(a.Classes))
	case len(a.Coef) > 1 && len(a.Classes) != len(a.Coef):
		return nil, fmt.Errorf("model has %d coef rows but %d classes", len(a.Coef), len(a.Classes))
	}
	return &Model{
		vec:       vec,
		coef:      a.Coef,
		intercept: a.Intercept,
		classes:   a.Classes,
	}, nil
}

func (m *Model) Vectorizer() *Vectorizer { return m.vec }

// Scores returns the decision function value per coef row.
func (m *Model) Scores(text string) []float64 {
	x := m.vec.Transform(text)
	scores := make([]float64, len(m.coef))
	for i, row := range m.coef {
		s := m.intercept[i]
		for _, f := range x {
			s += row[f.Column] * f.Value
		}
		scores[i] = s
	}
	return scores
}

// PredictLabel returns the class label with the highest score. Ties resolve
// to the lowest index.
func (m *Model) PredictLabel(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	scores := m.Scores(text)
	if len(scores) == 1 {
		if scores[0] > 0 {
			return m.classes[1], nil
		}
		return m.classes[0], nil
	}
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return m.classes[best], nil
}
