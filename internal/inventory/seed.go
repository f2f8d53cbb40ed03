package inventory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"kuwaiba/osp-core/internal/connectivity"
)

// Seed is a YAML fixture describing classes, objects and relationships.
// Objects must be listed parents first.
type Seed struct {
	Classes       []SeedClass        `yaml:"classes"`
	Objects       []SeedObject       `yaml:"objects"`
	Relationships []SeedRelationship `yaml:"relationships"`
}

type SeedClass struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`
}

type SeedObject struct {
	Class          string            `yaml:"class"`
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	Parent         string            `yaml:"parent"`
	SpecialParents []string          `yaml:"specialParents"`
	Attributes     map[string]string `yaml:"attributes"`
}

type SeedRelationship struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Name string `yaml:"name"`
}

func LoadSeed(path string) (Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(b)
}

func ParseSeed(b []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return seed, nil
}

// SeedTarget is a store a seed can be loaded into. Both the in-memory store
// and the Postgres queries implement it.
type SeedTarget interface {
	PutClass(ctx context.Context, name, superclass string) error
	PutObject(ctx context.Context, obj connectivity.Object, parent connectivity.Ref, specialParents ...connectivity.Ref) error
	CreateSpecialRelationship(ctx context.Context, from, to connectivity.Ref, relName string, isList bool) error
}

// Apply loads seed into the store.
func (s *Store) Apply(ctx context.Context, seed Seed) error {
	return ApplySeed(ctx, s, seed)
}

func ApplySeed(ctx context.Context, t SeedTarget, seed Seed) error {
	for _, c := range seed.Classes {
		if err := t.PutClass(ctx, c.Name, c.Parent); err != nil {
			return fmt.Errorf("class %s: %w", c.Name, err)
		}
	}
	for _, o := range seed.Objects {
		obj := connectivity.Object{
			Ref:        connectivity.Ref{Class: o.Class, ID: o.ID, Name: o.Name},
			Attributes: o.Attributes,
		}
		var parent connectivity.Ref
		if o.Parent != "" {
			p, ok := connectivity.ParseKey(o.Parent)
			if !ok {
				return fmt.Errorf("object %s: bad parent key %q", obj.Key(), o.Parent)
			}
			parent = p
		}
		var specials []connectivity.Ref
		for _, k := range o.SpecialParents {
			p, ok := connectivity.ParseKey(k)
			if !ok {
				return fmt.Errorf("object %s: bad special parent key %q", obj.Key(), k)
			}
			specials = append(specials, p)
		}
		if err := t.PutObject(ctx, obj, parent, specials...); err != nil {
			return err
		}
	}
	for _, r := range seed.Relationships {
		from, ok := connectivity.ParseKey(r.From)
		if !ok {
			return fmt.Errorf("relationship: bad from key %q", r.From)
		}
		to, ok := connectivity.ParseKey(r.To)
		if !ok {
			return fmt.Errorf("relationship: bad to key %q", r.To)
		}
		if err := t.CreateSpecialRelationship(ctx, from, to, r.Name, true); err != nil {
			return fmt.Errorf("relationship %s %s->%s: %w", r.Name, r.From, r.To, err)
		}
	}
	return nil
}

// NewFromSeed builds a store from a parsed seed.
func NewFromSeed(ctx context.Context, seed Seed) (*Store, error) {
	s := New()
	if err := s.Apply(ctx, seed); err != nil {
		return nil, err
	}
	return s, nil
}
