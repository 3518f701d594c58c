package engine

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/rollcall/internal/random"
	"github.com/roach88/rollcall/internal/roster"
)

// PolicyKind names a selection algorithm.
type PolicyKind string

const (
	Uniform    PolicyKind = "uniform"
	Weighted   PolicyKind = "weighted"
	Sequential PolicyKind = "sequential"
)

// PolicyKinds is the closed set of supported policies.
var PolicyKinds = []PolicyKind{Uniform, Weighted, Sequential}

// ParsePolicyKind validates a policy name.
func ParsePolicyKind(s string) (PolicyKind, error) {
	kind := PolicyKind(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(PolicyKinds, kind) {
		return "", fmt.Errorf("%w: unknown policy %q (want one of %v)", ErrInvalidPolicy, s, PolicyKinds)
	}
	return kind, nil
}

// Weights maps a rarity to its non-negative selection weight.
type Weights map[roster.Rarity]float64

// DefaultWeights keeps the scarcest entities drawable but rare-feeling.
func DefaultWeights() Weights {
	return Weights{
		roster.Ordinary:  1.0,
		roster.Rare:      0.5,
		roster.SuperRare: 0.1,
	}
}

// ParseWeights parses "ordinary=1,rare=0.5". An empty string yields nil.
func ParseWeights(s string) (Weights, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	w := Weights{}
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("%w: weight %q is not rarity=value", ErrInvalidPolicy, pair)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: weight for %q: %v", ErrInvalidPolicy, key, err)
		}
		w[roster.Rarity(strings.TrimSpace(key))] = f
	}
	return w, nil
}

// ParsePolicy parses a policy as Policy.String renders it, e.g.
// "sequential" or "weighted(ordinary=1,rare=0.5)".
func ParsePolicy(s string) (PolicyKind, Weights, error) {
	name, args, hasArgs := strings.Cut(strings.TrimSpace(s), "(")
	kind, err := ParsePolicyKind(name)
	if err != nil {
		return "", nil, err
	}
	if !hasArgs {
		return kind, nil, nil
	}
	inner, ok := strings.CutSuffix(args, ")")
	if !ok {
		return "", nil, fmt.Errorf("%w: unterminated weights in %q", ErrInvalidPolicy, s)
	}
	weights, err := ParseWeights(inner)
	if err != nil {
		return "", nil, err
	}
	return kind, weights, nil
}

// String renders weights in key order, e.g. "ordinary=1,rare=0.5".
func (w Weights) String() string {
	keys := slices.Sorted(maps.Keys(w))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, strconv.FormatFloat(w[k], 'g', -1, 64))
	}
	return strings.Join(parts, ",")
}

// Policy is an immutable selection configuration.
// Construct with NewPolicy; the zero value is not valid.
type Policy struct {
	Kind    PolicyKind
	weights Weights
}

// NewPolicy validates and builds a policy.
//
// For Weighted, the given weights are merged over DefaultWeights; every
// weight must be finite and non-negative and every key must be one of the
// allowed rarities. Weights are ignored for the other kinds.
func NewPolicy(kind PolicyKind, weights Weights, allowed []roster.Rarity) (Policy, error) {
	if !slices.Contains(PolicyKinds, kind) {
		return Policy{}, fmt.Errorf("%w: unknown policy %q", ErrInvalidPolicy, kind)
	}
	if kind != Weighted {
		return Policy{Kind: kind}, nil
	}

	merged := DefaultWeights()
	for r, v := range weights {
		if !slices.Contains(allowed, r) {
			return Policy{}, fmt.Errorf("%w: weight for unknown rarity %q", ErrInvalidPolicy, r)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Policy{}, fmt.Errorf("%w: weight for %q must be a finite non-negative number, got %v", ErrInvalidPolicy, r, v)
		}
		merged[r] = v
	}
	return Policy{Kind: kind, weights: merged}, nil
}

// DefaultPolicy is the uniform policy.
func DefaultPolicy() Policy {
	return Policy{Kind: Uniform}
}

// Weights returns a copy of the weight mapping (nil unless Weighted).
func (p Policy) Weights() Weights {
	if p.weights == nil {
		return nil
	}
	return maps.Clone(p.weights)
}

// String renders the policy, e.g. "weighted(ordinary=1,rare=0.5,super-rare=0.1)".
func (p Policy) String() string {
	if p.Kind == Weighted {
		return fmt.Sprintf("%s(%s)", p.Kind, p.weights)
	}
	return string(p.Kind)
}

// Select applies the policy to a non-empty snapshot.
// Returns false only when the snapshot is empty.
func (p Policy) Select(available []roster.Entity, src random.Source) (roster.Entity, bool) {
	if len(available) == 0 {
		return roster.Entity{}, false
	}
	switch p.Kind {
	case Weighted:
		return selectWeighted(available, p.weights, src), true
	case Sequential:
		return selectSequential(available), true
	default:
		return selectUniform(available, src), true
	}
}

// selectUniform picks index floor(U*n).
func selectUniform(available []roster.Entity, src random.Source) roster.Entity {
	n := len(available)
	i := int(src.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return available[i]
}

// selectWeighted draws R uniformly in [0, W) and walks the snapshot in order,
// subtracting each weight until R <= 0. Zero-weight entities are never
// chosen unless every weight is zero, in which case selection is uniform.
// If rounding leaves R positive after the walk, the last weighted entity wins.
func selectWeighted(available []roster.Entity, weights Weights, src random.Source) roster.Entity {
	total := 0.0
	for _, e := range available {
		total += weights[e.Rarity]
	}
	if total <= 0 {
		return selectUniform(available, src)
	}

	r := src.Float64() * total
	var last roster.Entity
	for _, e := range available {
		w := weights[e.Rarity]
		if w <= 0 {
			continue
		}
		last = e
		r -= w
		if r <= 0 {
			return e
		}
	}
	return last
}

// selectSequential picks the lowest ID.
func selectSequential(available []roster.Entity) roster.Entity {
	return slices.MinFunc(available, func(a, b roster.Entity) int {
		return a.ID - b.ID
	})
}
