package similarity

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Atom is one detection field-op-value triple (glossary: "Atom Jaccard").
type Atom struct {
	Field string
	Op    string
	Value string
}

func (a Atom) String() string { return a.Field + a.Op + a.Value }

// ExtractAtoms parses a Sigma rule's detection block into its set of atoms,
// used for both Jaccard similarity and (indirectly) logic-shape comparison.
func ExtractAtoms(yamlText string) ([]Atom, error) {
	var doc struct {
		Detection map[string]any `yaml:"detection"`
	}
	if err := yaml.Unmarshal([]byte(yamlText), &doc); err != nil {
		return nil, fmt.Errorf("similarity: parse rule: %w", err)
	}

	var atoms []Atom
	for name, sel := range doc.Detection {
		if name == "condition" {
			continue
		}
		atoms = append(atoms, extractSelectionAtoms(sel)...)
	}
	return atoms, nil
}

func extractSelectionAtoms(sel any) []Atom {
	var atoms []Atom
	switch v := sel.(type) {
	case map[string]any:
		for field, value := range v {
			fieldName, op := splitFieldModifier(field)
			atoms = append(atoms, Atom{Field: fieldName, Op: op, Value: fmt.Sprintf("%v", value)})
		}
	case []any:
		for _, item := range v {
			atoms = append(atoms, extractSelectionAtoms(item)...)
		}
	}
	return atoms
}

// splitFieldModifier separates a Sigma field name from its modifier suffix
// (e.g. "CommandLine|contains" -> ("CommandLine", "contains")).
func splitFieldModifier(field string) (name, op string) {
	if idx := strings.Index(field, "|"); idx >= 0 {
		return field[:idx], field[idx+1:]
	}
	return field, "equals"
}

// AtomJaccard computes Jaccard similarity between two atom sets (glossary).
func AtomJaccard(a, b []Atom) float64 {
	setA := atomSet(a)
	setB := atomSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection, union := 0, len(setA)
	seen := make(map[string]bool, len(setA))
	for k := range setA {
		seen[k] = true
	}
	for k := range setB {
		if seen[k] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func atomSet(atoms []Atom) map[string]bool {
	set := make(map[string]bool, len(atoms))
	for _, a := range atoms {
		set[a.String()] = true
	}
	return set
}

// atomsEqual reports whether two atom sets are identical (used to decide
// when LogicShapeSimilarity is null per §4.3.f).
func atomsEqual(a, b []Atom) bool {
	setA, setB := atomSet(a), atomSet(b)
	if len(setA) != len(setB) {
		return false
	}
	for k := range setA {
		if !setB[k] {
			return false
		}
	}
	return true
}
