package provider

// Sora2 model variants.
const (
	Sora2ModelDefault = "sora-2"
	Sora2ModelPro     = "sora-2-pro"
)

// Sora2 orientations and size tiers.
const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
	SizeSmall            = "small" // 720p
	SizeLarge            = "large" // 1080p
)

// Sora2DefaultDuration is the clip length in seconds when none is set.
const Sora2DefaultDuration = 15

// sora2CreateBody is the proxy create body for Sora2.
type sora2CreateBody struct {
	Images      []string `json:"images"`
	Model       string   `json:"model"`
	Orientation string   `json:"orientation"`
	Prompt      string   `json:"prompt"`
	Size        string   `json:"size"`
	Duration    int      `json:"duration"`
	Token       string   `json:"token,omitempty"`
}

// Sora2Adapter is the Adapter for Sora2.
type Sora2Adapter struct {
	rules DetailRules
}

// NewSora2Adapter creates a Sora2 adapter with the default detail rules.
func NewSora2Adapter() *Sora2Adapter {
	return &Sora2Adapter{rules: defaultDetailRules}
}

// Name returns Sora2.
func (a *Sora2Adapter) Name() Name { return Sora2 }

// TokenKey returns "sora2_token".
func (a *Sora2Adapter) TokenKey() string { return string(Sora2) + "_token" }

// CreateEndpoint returns the Sora2 create route.
func (a *Sora2Adapter) CreateEndpoint() string { return "/api/sora2/create" }

// DetailEndpoint returns the Sora2 query route.
func (a *Sora2Adapter) DetailEndpoint() string { return "/api/sora2/query" }

// Models returns the Sora2 model catalogue.
func (a *Sora2Adapter) Models() []string {
	return []string{Sora2ModelDefault, Sora2ModelPro}
}

// DefaultSettings returns the Sora2 defaults.
func (a *Sora2Adapter) DefaultSettings() Settings {
	return Settings{
		Model:       Sora2ModelDefault,
		Orientation: OrientationPortrait,
		Size:        SizeSmall,
		Duration:    Sora2DefaultDuration,
	}
}

// BuildCreateRequest builds the Sora2 create body. The item orientation wins
// over the batch setting.
func (a *Sora2Adapter) BuildCreateRequest(item Item, settings Settings, token string) any {
	def := a.DefaultSettings()
	duration := settings.Duration
	if duration <= 0 {
		duration = def.Duration
	}
	return sora2CreateBody{
		Images:      imagesOf(item),
		Model:       firstNonEmpty(settings.Model, def.Model),
		Orientation: firstNonEmpty(item.Orientation, settings.Orientation, def.Orientation),
		Prompt:      item.Prompt,
		Size:        firstNonEmpty(settings.Size, def.Size),
		Duration:    duration,
		Token:       token,
	}
}

// ParseDetail normalizes a Sora2 query response.
func (a *Sora2Adapter) ParseDetail(raw any) (Detail, bool) {
	return a.rules.Apply(raw)
}

// Compile-time check that Sora2Adapter implements Adapter.
var _ Adapter = (*Sora2Adapter)(nil)
