package importer

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gobwas/glob"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

//go:embed rules.schema.json
var rulesSchemaText string

var rulesSchema = jsonschema.MustCompileString("rules.schema.json", rulesSchemaText)

// Rule maps foreign block names matching Pattern to Target. Patterns are
// globs with brace alternation, e.g. "minecraft:*_{log,wood}". Target 0
// drops the block.
type Rule struct {
	Pattern string        `json:"pattern"`
	Target  voxel.BlockID `json:"target"`
}

// RulesFile is the on-disk rule list.
type RulesFile struct {
	Rules    []Rule         `json:"rules"`
	Fallback *voxel.BlockID `json:"fallback,omitempty"`
}

// ValidationError rejects a request before any work starts, or names the
// block that could not be mapped.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// LoadRules reads and validates a JSON rules file.
func LoadRules(r io.Reader) (RulesFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return RulesFile{}, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return RulesFile{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := rulesSchema.Validate(doc); err != nil {
		return RulesFile{}, &ValidationError{Field: "rules file", Value: "", Reason: err.Error()}
	}
	var rf RulesFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return RulesFile{}, fmt.Errorf("decode rules: %w", err)
	}
	return rf, nil
}

// DefaultRules maps common vanilla blocks onto the built-in catalog. Fluids
// and foliage are dropped and everything else becomes stone.
func DefaultRules() RulesFile {
	stone := blocks.Stone
	return RulesFile{
		Rules: []Rule{
			{Pattern: "minecraft:{water,lava,bubble_column,*_leaves,vine,snow}", Target: voxel.Empty},
			{Pattern: "minecraft:{grass_block,moss_block,mycelium}", Target: blocks.Grass},
			{Pattern: "minecraft:{dirt,coarse_dirt,rooted_dirt,podzol,mud,farmland,dirt_path}", Target: blocks.Dirt},
			{Pattern: "minecraft:{sand,red_sand,gravel,*sandstone}", Target: blocks.Sand},
			{Pattern: "minecraft:*glass*", Target: blocks.Glass},
			{Pattern: "minecraft:*_{planks,log,wood}", Target: blocks.Planks},
			{Pattern: "minecraft:*_slab", Target: blocks.Slab},
			{Pattern: "minecraft:*_stairs", Target: blocks.Stairs},
			{Pattern: "minecraft:*torch", Target: blocks.Torch},
			{Pattern: "minecraft:{grass,short_grass,tall_grass,fern,large_fern,dandelion,poppy,*_tulip}", Target: blocks.Plant},
			{Pattern: "minecraft:*_fence", Target: blocks.Fence},
		},
		Fallback: &stone,
	}
}

type compiledRule struct {
	Rule
	g glob.Glob
}

// RuleSet is an immutable compiled rule list. The first matching rule wins.
type RuleSet struct {
	rules    []compiledRule
	fallback *voxel.BlockID
}

// CompileRules checks every pattern and target id against reg.
func CompileRules(rules []Rule, fallback *voxel.BlockID, reg *blocks.Registry) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		g, err := glob.Compile(r.Pattern)
		if err != nil {
			return nil, &ValidationError{Field: "pattern", Value: r.Pattern, Reason: err.Error()}
		}
		if err := checkTarget(r.Target, reg); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rs.rules = append(rs.rules, compiledRule{Rule: r, g: g})
	}
	if fallback != nil {
		if err := checkTarget(*fallback, reg); err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		fb := *fallback
		rs.fallback = &fb
	}
	return rs, nil
}

func checkTarget(id voxel.BlockID, reg *blocks.Registry) error {
	if id == voxel.Empty || reg == nil || reg.Has(id) {
		return nil
	}
	return &ValidationError{Field: "target", Value: fmt.Sprint(id), Reason: "unknown block type"}
}

// Resolve returns the target for a foreign block name. ok is false when no
// rule matches and there is no fallback.
func (rs *RuleSet) Resolve(name string) (voxel.BlockID, bool) {
	for _, r := range rs.rules {
		if r.g.Match(name) {
			return r.Target, true
		}
	}
	if rs.fallback != nil {
		return *rs.fallback, true
	}
	return 0, false
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}
