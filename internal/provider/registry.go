package provider

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider kinds.
const (
	KindGemini = "gemini"
	KindOpenAI = "openai"
	KindStatic = "static"
)

// Spec is the startup description of one enabled provider.
type Spec struct {
	ID        string
	Kind      string // empty: derived from ID
	BaseURL   string
	Model     string
	APIKey    string
	Prompt    string
	MaxTokens int

	// static only
	Reply string
	Delay time.Duration
}

// Excluded records a provider that was requested but left out at startup.
type Excluded struct {
	ID  string
	Err error
}

// Registry holds the enabled providers in enable order. Immutable after Build.
type Registry struct {
	list []Provider
	byID map[string]Provider
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{byID: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		if p == nil {
			continue
		}
		if _, dup := r.byID[p.ID()]; dup {
			continue
		}
		r.list = append(r.list, p)
		r.byID[p.ID()] = p
	}
	return r
}

func (r *Registry) All() []Provider {
	out := make([]Provider, len(r.list))
	copy(out, r.list)
	return out
}

func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.list))
	for _, p := range r.list {
		out = append(out, p.ID())
	}
	return out
}

func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Registry) Len() int { return len(r.list) }

// KindFor derives the provider kind from a well-known id.
func KindFor(id string) string {
	switch strings.ToLower(id) {
	case "gemini":
		return KindGemini
	case "chatgpt", "openai", "perplexity":
		return KindOpenAI
	default:
		return ""
	}
}

// Build validates specs once and constructs the providers. A spec that cannot
// work (missing key, unknown kind, duplicate id) is excluded instead of
// failing on every call.
func Build(specs []Spec, client *http.Client) (*Registry, []Excluded) {
	var (
		ps       []Provider
		excluded []Excluded
		seen     = make(map[string]bool, len(specs))
	)
	for _, s := range specs {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			excluded = append(excluded, Excluded{ID: s.ID, Err: fmt.Errorf("%w: empty id", ErrNotConfigured)})
			continue
		}
		if seen[id] {
			excluded = append(excluded, Excluded{ID: id, Err: fmt.Errorf("duplicate provider id")})
			continue
		}
		seen[id] = true

		p, err := build(id, s, client)
		if err != nil {
			excluded = append(excluded, Excluded{ID: id, Err: err})
			continue
		}
		ps = append(ps, p)
	}
	return NewRegistry(ps...), excluded
}

func build(id string, s Spec, client *http.Client) (Provider, error) {
	kind := strings.ToLower(strings.TrimSpace(s.Kind))
	if kind == "" {
		kind = KindFor(id)
	}
	switch kind {
	case KindGemini:
		if s.APIKey == "" {
			return nil, fmt.Errorf("%w: missing api key", ErrNotConfigured)
		}
		return NewGemini(id, s.BaseURL, s.Model, s.APIKey, s.Prompt, client), nil
	case KindOpenAI:
		if s.APIKey == "" {
			return nil, fmt.Errorf("%w: missing api key", ErrNotConfigured)
		}
		base, model := s.BaseURL, s.Model
		if strings.EqualFold(id, "perplexity") {
			if base == "" {
				base = DefaultPerplexityBase
			}
			if model == "" {
				model = DefaultPerplexityModel
			}
		}
		return NewOpenAI(id, base, model, s.APIKey, s.Prompt, s.MaxTokens, client), nil
	case KindStatic:
		return NewStatic(id, s.Reply, s.Delay), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, s.Kind)
	}
}
