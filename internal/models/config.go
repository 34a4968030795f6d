package models

import "time"

// Config represents the main configuration
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http" toml:"http"`
	Input   InputConfig   `mapstructure:"input" toml:"input"`
	Select  SelectConfig  `mapstructure:"select" toml:"select"`
	Rules   RulesConfig   `mapstructure:"rules" toml:"rules"`
	PSL     PSLConfig     `mapstructure:"psl" toml:"psl"`
	Extract ExtractConfig `mapstructure:"extract" toml:"extract"`
	Output  OutputConfig  `mapstructure:"output" toml:"output"`
	Lookup  LookupConfig  `mapstructure:"lookup" toml:"lookup"`
}

// HTTPConfig contains HTTP client settings
type HTTPConfig struct {
	Timeout Duration `mapstructure:"timeout" toml:"timeout"`
	Retries int      `mapstructure:"retries" toml:"retries"`
}

// Duration is a time.Duration written as "30s" in config files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// InputConfig points at the geosite archive, either a local path or an http(s) URL.
type InputConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// SelectConfig lists the group tags consumed by the extractor.
// Matching is case-insensitive.
type SelectConfig struct {
	Tags []string `mapstructure:"tags" toml:"tags"`
}

// RulesConfig holds the literal policy tables
type RulesConfig struct {
	AdditionalDomains []string `mapstructure:"additional_domains" toml:"additional_domains"`
	ExcludedDomains   []string `mapstructure:"excluded_domains" toml:"excluded_domains"`
	ExcludedTLDs      []string `mapstructure:"excluded_tlds" toml:"excluded_tlds"`
}

// PSLConfig selects the public suffix dataset. An empty File uses the list
// compiled into golang.org/x/net/publicsuffix.
type PSLConfig struct {
	File          string `mapstructure:"file" toml:"file"`
	IgnorePrivate bool   `mapstructure:"ignore_private" toml:"ignore_private"`
}

// ExtractConfig contains extraction settings
type ExtractConfig struct {
	Workers int `mapstructure:"workers" toml:"workers"`
}

// OutputConfig contains output settings
type OutputConfig struct {
	Dir          string `mapstructure:"dir" toml:"dir"`
	BinaryFile   string `mapstructure:"binary_file" toml:"binary_file"`
	TextFile     string `mapstructure:"text_file" toml:"text_file"`
	ResidualFile string `mapstructure:"residual_file" toml:"residual_file"`
	Residual     bool   `mapstructure:"residual" toml:"residual"`
	ResidualTag  string `mapstructure:"residual_tag" toml:"residual_tag"`
}

// LookupConfig contains settings for the lookup command
type LookupConfig struct {
	Keys     string   `mapstructure:"keys" toml:"keys"`
	PassTLDs []string `mapstructure:"pass_tlds" toml:"pass_tlds"`
}

// DefaultSelectTags are the geosite groups extracted when no tags are configured.
var DefaultSelectTags = []string{"cn", "apple-cn"}

// DefaultConfig returns the configuration used when no config file is present.
// Rule tables are left empty here; the rules package supplies their defaults.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout: Duration(30 * time.Second),
			Retries: 3,
		},
		Input: InputConfig{
			Path: "./geosite.dat",
		},
		Select: SelectConfig{
			Tags: append([]string(nil), DefaultSelectTags...),
		},
		Extract: ExtractConfig{
			Workers: 1,
		},
		Output: OutputConfig{
			Dir:          "./output",
			BinaryFile:   "site_cn_binary.dat",
			TextFile:     "site_cn_domains.txt",
			ResidualFile: "site_cn.dat",
			Residual:     true,
			ResidualTag:  "cn",
		},
		Lookup: LookupConfig{
			Keys:     "./output/site_cn_binary.dat",
			PassTLDs: []string{"cn"},
		},
	}
}
