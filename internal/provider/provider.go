// Package provider describes the video generation providers the client can
// talk to. Each provider is an Adapter: it knows the proxy endpoints, the
// exact create request body, and how to normalize a detail response.
// Adapters are collected in a Registry so new providers can be added without
// touching the job lifecycle.
package provider

import (
	"errors"
	"sort"
	"sync"
)

// Name identifies a provider.
type Name string

const (
	// Veo3 is the Veo3 video generation service.
	Veo3 Name = "veo3"
	// Sora2 is the Sora2 video generation service.
	Sora2 Name = "sora2"
)

// ErrUnknownProvider is returned when a provider name is not registered.
var ErrUnknownProvider = errors.New("provider: unknown provider")

// Item is one draft submission: the prompt plus per-item overrides.
type Item struct {
	// Prompt is the free-text generation instruction.
	Prompt string `json:"prompt"`
	// FirstFrameImage is an optional reference image as a data URL or remote URL.
	FirstFrameImage string `json:"firstImage,omitempty"`
	// AspectRatio overrides Settings.AspectRatio for this item (Veo3).
	AspectRatio string `json:"aspectRatio,omitempty"`
	// Orientation overrides Settings.Orientation for this item (Sora2).
	Orientation string `json:"orientation,omitempty"`
}

// Settings holds generation options shared by a batch of items.
// Each provider reads the fields it supports and ignores the rest.
type Settings struct {
	Model string `json:"model,omitempty"`

	// Veo3 options
	AspectRatio    string `json:"aspectRatio,omitempty"`
	EnhancePrompt  *bool  `json:"enhancePrompt,omitempty"`
	EnableUpsample *bool  `json:"enableUpsample,omitempty"`

	// Sora2 options
	Orientation string `json:"orientation,omitempty"`
	Size        string `json:"size,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}

// Detail is a normalized detail/query response.
type Detail struct {
	Status   string `json:"status"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Adapter translates between the generic job model and one provider.
type Adapter interface {
	// Name returns the provider identifier.
	Name() Name
	// TokenKey returns the cache key for this provider's bearer token.
	TokenKey() string
	// CreateEndpoint returns the proxy path for job creation.
	CreateEndpoint() string
	// DetailEndpoint returns the proxy path for job detail queries.
	DetailEndpoint() string
	// Models returns the model variants this provider accepts, in catalogue order.
	Models() []string
	// DefaultSettings returns the settings used for fields left empty.
	DefaultSettings() Settings
	// BuildCreateRequest returns the JSON-encodable create body. It is pure.
	BuildCreateRequest(item Item, settings Settings, token string) any
	// ParseDetail normalizes a decoded detail response. It reports false only
	// when raw is nil.
	ParseDetail(raw any) (Detail, bool)
}

// Registry holds the known adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Name]Adapter
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Name]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry returns a registry with Veo3 and Sora2.
func DefaultRegistry() *Registry {
	return NewRegistry(NewVeo3Adapter(), NewSora2Adapter())
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for name.
func (r *Registry) Get(name Name) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return a, nil
}

// All returns every adapter ordered by name.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns every registered provider name in order.
func (r *Registry) Names() []Name {
	all := r.All()
	names := make([]Name, len(all))
	for i, a := range all {
		names[i] = a.Name()
	}
	return names
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func imagesOf(item Item) []string {
	images := []string{}
	if item.FirstFrameImage != "" {
		images = append(images, item.FirstFrameImage)
	}
	return images
}
