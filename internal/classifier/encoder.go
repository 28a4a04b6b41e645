package classifier

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// LabelEncoder is the exported classes_ list of a fitted label encoder:
// label i decodes to classes[i].
type LabelEncoder struct {
	classes []string
}

type encoderFile struct {
	Classes []string `json:"classes"`
}

func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("label encoder has no classes")
	}
	for i, c := range classes {
		if strings.TrimSpace(c) == "" {
			return nil, fmt.Errorf("label encoder class %d is blank", i)
		}
	}
	return &LabelEncoder{classes: append([]string(nil), classes...)}, nil
}

// LoadEncoder reads a JSON encoder artifact from path.
func LoadEncoder(path string) (*LabelEncoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open encoder: %w", err)
	}
	defer f.Close()
	enc, err := ParseEncoder(f)
	if err != nil {
		return nil, fmt.Errorf("encoder %s: %w", path, err)
	}
	return enc, nil
}

func ParseEncoder(r io.Reader) (*LabelEncoder, error) {
	var ef encoderFile
	if err := json.NewDecoder(r).Decode(&ef); err != nil {
		return nil, fmt.Errorf("decode encoder: %w", err)
	}
	return NewLabelEncoder(ef.Classes)
}

func (e *LabelEncoder) Decode(label int) (string, error) {
	if label < 0 || label >= len(e.classes) {
		return "", fmt.Errorf("%w: %d not in [0,%d)", ErrUnknownLabel, label, len(e.classes))
	}
	return e.classes[label], nil
}

func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}
