package chatsim

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Persona is a static virtual neighbor. Personas are never stored.
type Persona struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Avatar      string   `yaml:"avatar" json:"avatar"`
	Street      string   `yaml:"street" json:"street"`
	Temperament string   `yaml:"temperament" json:"temperament"`
	Signatures  []string `yaml:"signatures" json:"-"`
}

type Topic struct {
	Name      string   `yaml:"name"`
	Keywords  []string `yaml:"keywords"`
	Replies   []string `yaml:"replies"`
	FollowUps []string `yaml:"followups"`

	normalized []string
}

type Catalog struct {
	Personas []Persona `yaml:"personas"`
	Topics   []Topic   `yaml:"topics"`
	Generic  Topic     `yaml:"generic"`
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultCatalog)
}

func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse chat catalog: %w", err)
	}
	if len(c.Personas) < 2 {
		return nil, errors.New("chat catalog needs at least two personas")
	}
	if len(c.Generic.Replies) == 0 {
		return nil, errors.New("chat catalog needs generic replies")
	}

	seen := make(map[string]bool, len(c.Personas))
	for _, p := range c.Personas {
		if p.ID == "" || p.Name == "" {
			return nil, errors.New("persona without id or name")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate persona %q", p.ID)
		}
		seen[p.ID] = true
	}

	for i := range c.Topics {
		t := &c.Topics[i]
		if len(t.Replies) == 0 {
			return nil, fmt.Errorf("topic %q has no replies", t.Name)
		}
		t.normalized = make([]string, 0, len(t.Keywords))
		for _, kw := range t.Keywords {
			if n := Normalize(kw); n != "" {
				t.normalized = append(t.normalized, n)
			}
		}
	}
	if c.Generic.Name == "" {
		c.Generic.Name = "generic"
	}

	return &c, nil
}

func (c *Catalog) Persona(id string) (Persona, bool) {
	for _, p := range c.Personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// Classify returns the topic with most keyword hits; ties go to the earlier
// topic and no hits fall back to the generic topic.
func (c *Catalog) Classify(text string) *Topic {
	normalized := Normalize(text)
	if normalized == "" {
		return &c.Generic
	}
	words := tokenSet(normalized)

	best, bestScore := &c.Generic, 0
	for i := range c.Topics {
		if s := score(c.Topics[i].normalized, normalized, words); s > bestScore {
			best, bestScore = &c.Topics[i], s
		}
	}
	return best
}
