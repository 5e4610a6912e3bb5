package config

import "time"

// File represents the structure of the .pepfetch configuration file.
// Every field is optional; unset fields leave the corresponding Config
// value untouched. Pointers distinguish "unset" from an explicit zero.
type File struct {
	// IndexURL overrides the index endpoint.
	IndexURL string `yaml:"indexURL,omitempty"`

	// OutputDir overrides the artifact directory.
	OutputDir string `yaml:"outputDir,omitempty"`

	// Timeout overrides the per-request timeout, e.g. "30s". "0s" disables it.
	Timeout *time.Duration `yaml:"timeout,omitempty"`

	// Concurrency overrides the in-flight bound. 0 means unbounded.
	Concurrency *int `yaml:"concurrency,omitempty"`

	// Selector overrides the content region selector.
	Selector string `yaml:"selector,omitempty"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"userAgent,omitempty"`

	// MaxBodySize overrides the response body limit in bytes.
	MaxBodySize *int64 `yaml:"maxBodySize,omitempty"`

	// Headers are extra HTTP headers added to every request.
	// Entries are merged into Config.Headers, file values winning.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Proxy is a SOCKS5 proxy address.
	Proxy string `yaml:"proxy,omitempty"`

	// Tor enables the embedded Tor daemon.
	Tor *bool `yaml:"tor,omitempty"`

	// TorStartupTimeout overrides the Tor bootstrap timeout.
	TorStartupTimeout *time.Duration `yaml:"torStartupTimeout,omitempty"`

	// History enables or disables the run history database.
	History *bool `yaml:"history,omitempty"`

	// DBDir overrides the history database directory.
	DBDir string `yaml:"dbDir,omitempty"`
}

// Apply copies every field set in the file onto cfg.
func (f *File) Apply(cfg *Config) {
	if f == nil || cfg == nil {
		return
	}
	if f.IndexURL != "" {
		cfg.IndexURL = f.IndexURL
	}
	if f.OutputDir != "" {
		cfg.OutputDir = f.OutputDir
	}
	if f.Timeout != nil {
		cfg.Timeout = *f.Timeout
	}
	if f.Concurrency != nil {
		cfg.Concurrency = *f.Concurrency
	}
	if f.Selector != "" {
		cfg.Selector = f.Selector
	}
	if f.UserAgent != "" {
		cfg.UserAgent = f.UserAgent
	}
	if f.MaxBodySize != nil {
		cfg.MaxBodySize = *f.MaxBodySize
	}
	if len(f.Headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(f.Headers))
		}
		for k, v := range f.Headers {
			cfg.Headers[k] = v
		}
	}
	if f.Proxy != "" {
		cfg.ProxyAddress = f.Proxy
	}
	if f.Tor != nil {
		cfg.UseTor = *f.Tor
	}
	if f.TorStartupTimeout != nil {
		cfg.TorStartupTimeout = *f.TorStartupTimeout
	}
	if f.History != nil {
		cfg.SaveHistory = *f.History
	}
	if f.DBDir != "" {
		cfg.DBDir = f.DBDir
	}
}
