package dataset

import (
	"fmt"
	"math"

	"cytodx/errdefs"
)

// RecordRule validates one parsed record. A failing rule rejects the whole load.
type RecordRule interface {
	Check(rec Record) error
	Name() string
}

// FeatureCountRule checks the per-record feature count against the schema.
type FeatureCountRule struct {
	Expected int
}

func NewFeatureCountRule(expected int) *FeatureCountRule {
	return &FeatureCountRule{Expected: expected}
}

func (r *FeatureCountRule) Name() string { return "feature_count" }

func (r *FeatureCountRule) Check(rec Record) error {
	if len(rec.Features) != r.Expected {
		return fmt.Errorf("%w: expected %d features, got %d", errdefs.ErrSchema, r.Expected, len(rec.Features))
	}
	return nil
}

// FiniteFeatureRule rejects NaN and infinite measurements.
type FiniteFeatureRule struct {
	names []string
}

func NewFiniteFeatureRule(names []string) *FiniteFeatureRule {
	return &FiniteFeatureRule{names: names}
}

func (r *FiniteFeatureRule) Name() string { return "finite_feature" }

func (r *FiniteFeatureRule) Check(rec Record) error {
	for i, v := range rec.Features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			name := fmt.Sprintf("#%d", i)
			if i < len(r.names) {
				name = r.names[i]
			}
			return fmt.Errorf("%w: feature %s is not finite (%v)", errdefs.ErrParse, name, v)
		}
	}
	return nil
}

// LabelRule keeps labels inside {0,1}. Records built in code bypass the codec, so the
// writer checks them too.
type LabelRule struct{}

func (LabelRule) Name() string { return "label" }

func (LabelRule) Check(rec Record) error {
	if rec.Label != Benign && rec.Label != Malignant {
		return fmt.Errorf("%w: label %d is not 0 or 1", errdefs.ErrSchema, int(rec.Label))
	}
	return nil
}

// DefaultRules returns the rule chain applied to every loaded record.
func DefaultRules(s *Schema) []RecordRule {
	return []RecordRule{
		NewFeatureCountRule(s.FeatureCount()),
		NewFiniteFeatureRule(s.FeatureNames()),
		LabelRule{},
	}
}

func applyRules(rules []RecordRule, rec Record) error {
	for _, rule := range rules {
		if err := rule.Check(rec); err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
	}
	return nil
}
