package provider

// Veo3 model variants.
const (
	Veo3ModelDefault    = "veo3"
	Veo3ModelFast       = "veo3-fast"
	Veo3ModelFastFrames = "veo3-fast-frames"
	Veo3ModelFrames     = "veo3-frames"
	Veo3ModelPro        = "veo3-pro"
	Veo3ModelProFrames  = "veo3-pro-frames"
)

// Veo3 aspect ratios.
const (
	AspectLandscape = "16:9"
	AspectPortrait  = "9:16"
)

// veo3CreateBody is the proxy create body for Veo3.
type veo3CreateBody struct {
	Prompt  string      `json:"prompt"`
	Options veo3Options `json:"options"`
	Token   string      `json:"token,omitempty"`
}

type veo3Options struct {
	Model          string   `json:"model"`
	Images         []string `json:"images"`
	EnhancePrompt  bool     `json:"enhancePrompt"`
	EnableUpsample bool     `json:"enableUpsample"`
	AspectRatio    string   `json:"aspectRatio"`
}

// Veo3Adapter is the Adapter for Veo3.
type Veo3Adapter struct {
	rules DetailRules
}

// NewVeo3Adapter creates a Veo3 adapter with the default detail rules.
func NewVeo3Adapter() *Veo3Adapter {
	return &Veo3Adapter{rules: defaultDetailRules}
}

// Name returns Veo3.
func (a *Veo3Adapter) Name() Name { return Veo3 }

// TokenKey returns "veo3_token".
func (a *Veo3Adapter) TokenKey() string { return string(Veo3) + "_token" }

// CreateEndpoint returns the Veo3 create route.
func (a *Veo3Adapter) CreateEndpoint() string { return "/api/veo3/create" }

// DetailEndpoint returns the Veo3 detail route.
func (a *Veo3Adapter) DetailEndpoint() string { return "/api/veo3/detail" }

// Models returns the Veo3 model catalogue.
func (a *Veo3Adapter) Models() []string {
	return []string{
		Veo3ModelDefault,
		Veo3ModelFastFrames,
		Veo3ModelFast,
		Veo3ModelPro,
		Veo3ModelProFrames,
		Veo3ModelFrames,
	}
}

// DefaultSettings returns the Veo3 defaults.
func (a *Veo3Adapter) DefaultSettings() Settings {
	enhance, upsample := true, false
	return Settings{
		Model:          Veo3ModelFastFrames,
		AspectRatio:    AspectPortrait,
		EnhancePrompt:  &enhance,
		EnableUpsample: &upsample,
	}
}

// BuildCreateRequest builds the Veo3 create body. The item aspect ratio wins
// over the batch setting.
func (a *Veo3Adapter) BuildCreateRequest(item Item, settings Settings, token string) any {
	def := a.DefaultSettings()
	return veo3CreateBody{
		Prompt: item.Prompt,
		Options: veo3Options{
			Model:          firstNonEmpty(settings.Model, def.Model),
			Images:         imagesOf(item),
			EnhancePrompt:  boolOr(settings.EnhancePrompt, *def.EnhancePrompt),
			EnableUpsample: boolOr(settings.EnableUpsample, *def.EnableUpsample),
			AspectRatio:    firstNonEmpty(item.AspectRatio, settings.AspectRatio, def.AspectRatio),
		},
		Token: token,
	}
}

// ParseDetail normalizes a Veo3 detail response.
func (a *Veo3Adapter) ParseDetail(raw any) (Detail, bool) {
	return a.rules.Apply(raw)
}

// Compile-time check that Veo3Adapter implements Adapter.
var _ Adapter = (*Veo3Adapter)(nil)
