package config

// Config holds glean configuration.
// Stored at: ~/.glean/config.yaml
type Config struct {
	OCRProviders map[string]OCRProviderCfg `mapstructure:"ocr_providers" yaml:"ocr_providers"`
	Backends     map[string]BackendCfg     `mapstructure:"backends" yaml:"backends"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Locator      LocatorCfg                `mapstructure:"locator" yaml:"locator"`
	Validator    ValidatorCfg              `mapstructure:"validator" yaml:"validator"`
	Ocrbox       OcrboxCfg                 `mapstructure:"ocrbox" yaml:"ocrbox"`
	Ingest       IngestCfg                 `mapstructure:"ingest" yaml:"ingest"`
	ProfilesPath string                    `mapstructure:"profiles_path" yaml:"profiles_path"`
}

// OCRProviderCfg configures an OCR provider.
type OCRProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"` // "tesseract", "docai", "remote"
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second

	// Tesseract.
	Languages []string `mapstructure:"languages" yaml:"languages,omitempty"`

	// Document AI.
	ProjectID       string `mapstructure:"project_id" yaml:"project_id,omitempty"`
	Location        string `mapstructure:"location" yaml:"location,omitempty"`
	ProcessorID     string `mapstructure:"processor_id" yaml:"processor_id,omitempty"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`

	// Remote sidecar.
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// BackendCfg configures a generative extraction backend.
type BackendCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`       // "openai", "gemini"
	Model     string  `mapstructure:"model" yaml:"model"`     // empty uses the backend default
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	MaxTokens int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default selections for extraction runs.
type DefaultsCfg struct {
	OCRProviders []string `mapstructure:"ocr_providers" yaml:"ocr_providers"` // ordered provider names
	Backend      string   `mapstructure:"backend" yaml:"backend"`
	Tier         string   `mapstructure:"tier" yaml:"tier"`               // FAST, BALANCED, HIGH
	MaxWorkers   int      `mapstructure:"max_workers" yaml:"max_workers"` // concurrent documents
}

// LocatorCfg tunes field-to-page matching.
type LocatorCfg struct {
	MinSimilarity  float64 `mapstructure:"min_similarity" yaml:"min_similarity"`
	SubsetMinWords int     `mapstructure:"subset_min_words" yaml:"subset_min_words"`
	MaxSpanSlack   int     `mapstructure:"max_span_slack" yaml:"max_span_slack"`
}

// ValidatorCfg tunes validation and calibration.
type ValidatorCfg struct {
	ArithmeticTolerance float64 `mapstructure:"arithmetic_tolerance" yaml:"arithmetic_tolerance"`
	UnlocatedCeiling    float64 `mapstructure:"unlocated_ceiling" yaml:"unlocated_ceiling"`
}

// OcrboxCfg holds the OCR sidecar container configuration.
type OcrboxCfg struct {
	// ContainerName is the Docker container name (default: glean-ocrbox)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: otiai10/ocrserver:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 8764)
	Port string `mapstructure:"port" yaml:"port"`
}

// IngestCfg tunes document loading.
type IngestCfg struct {
	DPI int `mapstructure:"dpi" yaml:"dpi"` // PDF rasterization resolution
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OCRProviders: map[string]OCRProviderCfg{
			"tesseract": {
				Type:      "tesseract",
				Languages: []string{"eng"},
				Enabled:   true,
			},
			"docai": {
				Type:      "docai",
				Location:  "us",
				RateLimit: 5.0,
				Enabled:   false,
			},
			"ocrbox": {
				Type:    "remote",
				BaseURL: "http://localhost:8764",
				Enabled: false,
			},
		},
		Backends: map[string]BackendCfg{
			"openai": {
				Type:      "openai",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 2.0,
				Enabled:   true,
			},
			"gemini": {
				Type:      "gemini",
				APIKey:    "${GEMINI_API_KEY}",
				RateLimit: 1.0,
				Enabled:   false,
			},
		},
		Defaults: DefaultsCfg{
			OCRProviders: []string{"tesseract"},
			Backend:      "openai",
			Tier:         "BALANCED",
			MaxWorkers:   4,
		},
		Locator: LocatorCfg{
			MinSimilarity:  0.7,
			SubsetMinWords: 2,
			MaxSpanSlack:   2,
		},
		Validator: ValidatorCfg{
			ArithmeticTolerance: 0.01,
			UnlocatedCeiling:    0.6,
		},
		Ocrbox: OcrboxCfg{
			ContainerName: "glean-ocrbox",
			Image:         "otiai10/ocrserver:latest",
			Port:          "8764",
		},
		Ingest: IngestCfg{DPI: 300},
	}
}

// GetOCRProvider returns an OCR provider config by name.
func (c *Config) GetOCRProvider(name string) (OCRProviderCfg, bool) {
	cfg, ok := c.OCRProviders[name]
	return cfg, ok
}

// GetBackend returns a backend config by name.
func (c *Config) GetBackend(name string) (BackendCfg, bool) {
	cfg, ok := c.Backends[name]
	return cfg, ok
}

// EnabledOCRProviders returns all enabled OCR providers.
func (c *Config) EnabledOCRProviders() map[string]OCRProviderCfg {
	result := make(map[string]OCRProviderCfg)
	for name, cfg := range c.OCRProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// EnabledBackends returns all enabled backends.
func (c *Config) EnabledBackends() map[string]BackendCfg {
	result := make(map[string]BackendCfg)
	for name, cfg := range c.Backends {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
