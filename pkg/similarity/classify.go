package similarity

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ctihunt/workflowengine/pkg/models"
)

// Metrics is the per-match comparison result before it is attached to a
// models.RuleSimilarity (§4.3.f).
type Metrics struct {
	AtomJaccard          float64
	LogicShapeSimilarity *float64
	WeightedSimilarity   float64
	Classification       models.NoveltyClass
}

// Compare computes the full §4.3.f comparison between a generated candidate
// rule and one corpus match.
func Compare(candidateYAML, corpusYAML string) (Metrics, error) {
	candidateAtoms, err := ExtractAtoms(candidateYAML)
	if err != nil {
		return Metrics{}, fmt.Errorf("similarity: candidate: %w", err)
	}
	corpusAtoms, err := ExtractAtoms(corpusYAML)
	if err != nil {
		return Metrics{}, fmt.Errorf("similarity: corpus: %w", err)
	}

	jaccard := AtomJaccard(candidateAtoms, corpusAtoms)
	shape, err := logicShapeSimilarity(candidateYAML, corpusYAML, candidateAtoms, corpusAtoms, jaccard)
	if err != nil {
		return Metrics{}, err
	}

	weighted := jaccard
	if shape != nil {
		weighted = 0.7*jaccard + 0.3*(*shape)
	}

	return Metrics{
		AtomJaccard:          jaccard,
		LogicShapeSimilarity: shape,
		WeightedSimilarity:   weighted,
		Classification:       classify(jaccard, shape),
	}, nil
}

// classify implements the §4.3.f thresholds: DUPLICATE requires both atom
// Jaccard and logic-shape similarity above 0.95; SIMILAR only requires atom
// Jaccard above 0.80; otherwise NOVEL. This preserves the strict hierarchy
// DUPLICATE⟹SIMILAR⟹¬NOVEL required by §8 property 7.
func classify(atomJaccard float64, shape *float64) models.NoveltyClass {
	shapeVal := 0.0
	if shape != nil {
		shapeVal = *shape
	} else {
		// nil means "all atoms identical" (see logicShapeSimilarity), which
		// is the strongest possible structural match.
		shapeVal = 1.0
	}
	if atomJaccard > 0.95 && shapeVal > 0.95 {
		return models.NoveltyDuplicate
	}
	if atomJaccard > 0.80 {
		return models.NoveltySimilar
	}
	return models.NoveltyNovel
}

// logicShapeSimilarity implements §4.3.f's structural comparison of the
// detection condition tree: null when all atoms are identical (spec
// mandate); 0.0 when the atom sets are disjoint (§9 open-question decision,
// documented in DESIGN.md); otherwise a bag-of-operator-tokens similarity
// over the condition expression's AND/OR/NOT shape, atoms normalized.
func logicShapeSimilarity(candidateYAML, corpusYAML string, candidateAtoms, corpusAtoms []Atom, atomJaccard float64) (*float64, error) {
	if atomsEqual(candidateAtoms, corpusAtoms) {
		return nil, nil
	}
	if atomJaccard == 0 {
		zero := 0.0
		return &zero, nil
	}

	shapeA, err := conditionShape(candidateYAML)
	if err != nil {
		return nil, err
	}
	shapeB, err := conditionShape(corpusYAML)
	if err != nil {
		return nil, err
	}
	sim := tokenBagSimilarity(shapeA, shapeB)
	return &sim, nil
}

// conditionShape extracts the ordered sequence of structural keywords
// (and/or/not/1/all/of/them) from a rule's condition expression, ignoring
// selection names so two rules with differently-named selections but the
// same logical shape compare equal.
func conditionShape(yamlText string) ([]string, error) {
	var doc struct {
		Detection map[string]any `yaml:"detection"`
	}
	if err := yaml.Unmarshal([]byte(yamlText), &doc); err != nil {
		return nil, fmt.Errorf("similarity: parse condition: %w", err)
	}
	condition, _ := doc.Detection["condition"].(string)
	var shape []string
	for _, tok := range tokenizeShapeWords(condition) {
		shape = append(shape, tok)
	}
	return shape, nil
}

func tokenizeShapeWords(condition string) []string {
	var out []string
	for _, word := range splitWords(condition) {
		switch word {
		case "and", "or", "not", "1", "all", "of", "them":
			out = append(out, word)
		}
	}
	return out
}

func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch r {
		case '(', ')', ' ', '\t', '\n':
			flush()
		default:
			cur = append(cur, toLower(r))
		}
	}
	flush()
	return words
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// tokenBagSimilarity is a Jaccard-like similarity over two ordered token
// bags, counting repeated tokens by multiplicity.
func tokenBagSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	countsA := counts(a)
	countsB := counts(b)

	var shared, total int
	for tok, ca := range countsA {
		cb := countsB[tok]
		if cb < ca {
			shared += cb
		} else {
			shared += ca
		}
	}
	for _, c := range countsA {
		total += c
	}
	for _, c := range countsB {
		total += c
	}
	if total == 0 {
		return 1
	}
	return 2 * float64(shared) / float64(total)
}

func counts(tokens []string) map[string]int {
	m := make(map[string]int, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}
