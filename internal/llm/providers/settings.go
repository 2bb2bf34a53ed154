package providers

// Settings carries the adapter-level configuration for one provider:
// credentials and endpoint only. Sampling parameters arrive per call in the
// resolved config.
type Settings struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}
