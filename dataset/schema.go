package dataset

import (
	"fmt"
	"strings"

	"cytodx/errdefs"
)

// Role tells the loader what to do with a column.
type Role int

const (
	RoleID Role = iota
	RoleLabel
	RoleFeature
)

func (r Role) String() string {
	switch r {
	case RoleID:
		return "id"
	case RoleLabel:
		return "label"
	case RoleFeature:
		return "feature"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Diagnosis is the numeric label code.
type Diagnosis int

const (
	Benign    Diagnosis = 0
	Malignant Diagnosis = 1
)

func (d Diagnosis) String() string {
	if d == Malignant {
		return "malignant"
	}
	return "benign"
}

func (d Diagnosis) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Diagnosis) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "benign":
		*d = Benign
	case "malignant":
		*d = Malignant
	default:
		return fmt.Errorf("%w: unknown diagnosis %q", errdefs.ErrSchema, text)
	}
	return nil
}

// Groups and quantities of the thirty cytology measurements, in file order.
var (
	MeasurementGroups = []string{"mean", "se", "worst"}
	Quantities        = []string{
		"radius",
		"texture",
		"perimeter",
		"area",
		"smoothness",
		"compactness",
		"concavity",
		"concave_points",
		"symmetry",
		"fractal_dimension",
	}
)

// FeatureCount is the number of features in the canonical schema.
const FeatureCount = 30

type Column struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// LabelCodec maps the raw label strings to diagnoses.
type LabelCodec struct {
	Benign    string `json:"benign"`
	Malignant string `json:"malignant"`
}

func (c LabelCodec) Decode(raw string) (Diagnosis, error) {
	switch strings.TrimSpace(raw) {
	case c.Malignant:
		return Malignant, nil
	case c.Benign:
		return Benign, nil
	case "":
		return 0, fmt.Errorf("%w: missing label", errdefs.ErrSchema)
	default:
		return 0, fmt.Errorf("%w: label %q is not %q or %q", errdefs.ErrSchema, raw, c.Malignant, c.Benign)
	}
}

func (c LabelCodec) Encode(d Diagnosis) string {
	if d == Malignant {
		return c.Malignant
	}
	return c.Benign
}

// Schema is the ordered column layout of a headerless input file.
type Schema struct {
	Columns []Column   `json:"columns"`
	Codec   LabelCodec `json:"codec"`
}

// DefaultSchema returns the 32-column layout: id, diagnosis, then 30 features.
func DefaultSchema() *Schema {
	columns := make([]Column, 0, 2+FeatureCount)
	columns = append(columns,
		Column{Name: "id", Role: RoleID},
		Column{Name: "diagnosis", Role: RoleLabel},
	)
	for _, group := range MeasurementGroups {
		for _, quantity := range Quantities {
			columns = append(columns, Column{Name: quantity + "_" + group, Role: RoleFeature})
		}
	}
	return &Schema{
		Columns: columns,
		Codec:   LabelCodec{Benign: "B", Malignant: "M"},
	}
}

// FeatureNames returns feature column names in order.
func (s *Schema) FeatureNames() []string {
	names := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		if col.Role == RoleFeature {
			names = append(names, col.Name)
		}
	}
	return names
}

func (s *Schema) FeatureCount() int {
	n := 0
	for _, col := range s.Columns {
		if col.Role == RoleFeature {
			n++
		}
	}
	return n
}

// LabelIndex returns the position of the label column, or -1.
func (s *Schema) LabelIndex() int {
	for i, col := range s.Columns {
		if col.Role == RoleLabel {
			return i
		}
	}
	return -1
}

// HasLabel reports whether exactly one label column is declared.
func (s *Schema) HasLabel() bool {
	n := 0
	for _, col := range s.Columns {
		if col.Role == RoleLabel {
			n++
		}
	}
	return n == 1
}

// Validate checks the schema itself before any rows are read.
func (s *Schema) Validate() error {
	if s == nil || len(s.Columns) == 0 {
		return fmt.Errorf("%w: schema has no columns", errdefs.ErrSchema)
	}
	if !s.HasLabel() {
		return fmt.Errorf("%w: schema must declare exactly one label column", errdefs.ErrSchema)
	}
	if s.FeatureCount() == 0 {
		return fmt.Errorf("%w: schema has no feature columns", errdefs.ErrSchema)
	}
	if s.Codec.Benign == "" || s.Codec.Malignant == "" || s.Codec.Benign == s.Codec.Malignant {
		return fmt.Errorf("%w: label codec must map two distinct values", errdefs.ErrSchema)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, col := range s.Columns {
		if col.Name == "" {
			return fmt.Errorf("%w: unnamed column", errdefs.ErrSchema)
		}
		if seen[col.Name] {
			return fmt.Errorf("%w: duplicate column %q", errdefs.ErrSchema, col.Name)
		}
		seen[col.Name] = true
	}
	return nil
}

// FeatureIndex maps each feature name to its position in a feature vector.
func (s *Schema) FeatureIndex() map[string]int {
	index := make(map[string]int)
	for i, name := range s.FeatureNames() {
		index[name] = i
	}
	return index
}
