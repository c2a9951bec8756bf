package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/aemassist/internal/mcp"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":5001"
	DefaultCORSOrigin     = "*"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-ada-002"
	DefaultIndexPath      = "./aemassist-index.db"
	DefaultDimensions     = 1536
	DefaultTopK           = 4
	DefaultFuzzyThreshold = 0.9
	DefaultMaxMessages    = 10
	DefaultCapacity       = 1024
	DefaultSessionTTL     = time.Hour
	DefaultCredPrefix     = "aem-"
	DefaultServiceName    = "aemassist"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path, applies defaults and
// environment overrides, and validates the result. An empty path starts from
// an empty document, so a deployment can be configured from the environment
// alone.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromReader(nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and runs the same pipeline as
// [Load]. A nil reader decodes nothing.
func LoadFromReader(r io.Reader) (*Config, error) {
	return loadFromReader(r, os.LookupEnv)
}

func loadFromReader(r io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if r != nil {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	ApplyEnv(cfg, lookup)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv copies well-known environment variables into cfg. Values that are
// set in the environment win over the file.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" {
		if cfg.Providers.LLM.APIKey == "" {
			cfg.Providers.LLM.APIKey = v
		}
		if cfg.Providers.Embeddings.APIKey == "" {
			cfg.Providers.Embeddings.APIKey = v
		}
	}
	set("AEM_SERVER", &cfg.Credentials.Server)
	set("AEM_TOKEN", &cfg.Credentials.Token)
	set("MCP_SERVER_URL", &cfg.MCP.URL)
	if v, ok := lookup("AEMASSIST_INDEX"); ok && v != "" {
		cfg.Index.Path = v
		if cfg.Index.Backend == "" {
			cfg.Index.Backend = IndexSQLite
		}
	}
	if v, ok := lookup("AEMASSIST_POSTGRES_DSN"); ok && v != "" {
		cfg.Index.PostgresDSN = v
		if cfg.Index.Backend == "" {
			cfg.Index.Backend = IndexPostgres
		}
	}
	set("ASSET_THUMBNAIL_BASE_URL", &cfg.Router.AssetThumbnailBaseURL)
}

// ApplyDefaults fills every unset field that has a documented default.
func ApplyDefaults(cfg *Config) {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	def(&cfg.Server.ListenAddr, DefaultListenAddr)
	def(&cfg.Server.CORSOrigin, DefaultCORSOrigin)
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	def(&cfg.Providers.LLM.Name, "openai")
	if cfg.Providers.LLM.Name == "openai" {
		def(&cfg.Providers.LLM.Model, DefaultLLMModel)
	}
	def(&cfg.Providers.Embeddings.Name, "openai")
	if cfg.Providers.Embeddings.Name == "openai" {
		def(&cfg.Providers.Embeddings.Model, DefaultEmbeddingModel)
	}

	def(&cfg.MCP.Name, "aem")
	if cfg.MCP.Transport == "" {
		cfg.MCP.Transport = mcp.TransportJSONRPC
	}
	if cfg.MCP.Timeout <= 0 {
		cfg.MCP.Timeout = mcp.DefaultTimeout
	}

	def(&cfg.Credentials.Prefix, DefaultCredPrefix)

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = IndexSQLite
	}
	def(&cfg.Index.Path, DefaultIndexPath)
	if cfg.Index.Dimensions <= 0 {
		cfg.Index.Dimensions = DefaultDimensions
	}
	if cfg.Index.TopK <= 0 {
		cfg.Index.TopK = DefaultTopK
	}

	if cfg.Router.Classifier == "" {
		cfg.Router.Classifier = ClassifierLLM
	}
	if cfg.Router.FuzzyThreshold <= 0 {
		cfg.Router.FuzzyThreshold = DefaultFuzzyThreshold
	}

	if cfg.Session.MaxMessages <= 0 {
		cfg.Session.MaxMessages = DefaultMaxMessages
	}
	if cfg.Session.Capacity <= 0 {
		cfg.Session.Capacity = DefaultCapacity
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = DefaultSessionTTL
	}

	def(&cfg.Observe.ServiceName, DefaultServiceName)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	for _, fb := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "openai" && cfg.Providers.LLM.APIKey == "" {
		slog.Warn("providers.llm has no api_key and OPENAI_API_KEY is not set; model calls will fail")
	}

	// MCP
	if cfg.MCP.Transport != "" && !cfg.MCP.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("mcp.transport %q is invalid; valid values: jsonrpc, stdio, streamable-http", cfg.MCP.Transport))
	}
	switch cfg.MCP.Transport {
	case mcp.TransportStdio:
		if cfg.MCP.Command == "" {
			errs = append(errs, errors.New("mcp.command is required when transport is stdio"))
		}
	case mcp.TransportJSONRPC, mcp.TransportStreamableHTTP:
		if cfg.MCP.URL == "" {
			slog.Warn("mcp.url is empty and MCP_SERVER_URL is not set; no tools will be available", "transport", cfg.MCP.Transport)
		}
	}
	if cfg.MCP.Timeout < 0 {
		errs = append(errs, fmt.Errorf("mcp.timeout %s must not be negative", cfg.MCP.Timeout))
	}

	// Credentials
	if !cfg.Credentials.Disabled && (cfg.Credentials.Server == "" || cfg.Credentials.Token == "") {
		slog.Warn("AEM credentials are incomplete; aem-* tools will be called without them",
			"server_set", cfg.Credentials.Server != "",
			"token_set", cfg.Credentials.Token != "",
		)
	}

	// Index
	if cfg.Index.Backend != "" && !cfg.Index.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("index.backend %q is invalid; valid values: sqlite, postgres", cfg.Index.Backend))
	}
	if cfg.Index.Backend == IndexPostgres && cfg.Index.PostgresDSN == "" {
		errs = append(errs, errors.New("index.postgres_dsn is required when backend is postgres"))
	}
	if cfg.Index.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("index.dimensions %d must not be negative", cfg.Index.Dimensions))
	}

	// Router
	if cfg.Router.Classifier != "" && !cfg.Router.Classifier.IsValid() {
		errs = append(errs, fmt.Errorf("router.classifier %q is invalid; valid values: llm, rules", cfg.Router.Classifier))
	}
	if cfg.Router.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("router.fuzzy_threshold %.2f is out of range (0, 1]", cfg.Router.FuzzyThreshold))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
