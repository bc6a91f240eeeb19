// Package config loads the service configuration.
//
// The file is YAML, found through --config or SNAP_BUILDER_CONFIG. Field
// types are checked one by one so a mistake names the offending field.
package config

import (
	"crypto/rsa"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"

	"github.com/melih/github-snap-builder/internal/adapters/builder"
	"github.com/melih/github-snap-builder/internal/core/domain"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "SNAP_BUILDER_CONFIG"

const (
	DefaultPort           = 3000
	DefaultBind           = "0.0.0.0"
	DefaultChannel        = "edge"
	DefaultLogDir         = "logs"
	DefaultImageRecipeDir = "docker"
	DefaultLogTimeout     = 600 * time.Second
)

// Config is read-only once loaded.
type Config struct {
	WebhookSecret string
	AppID         int64
	PrivateKey    *rsa.PrivateKey
	BuildType     string
	Port          int
	Bind          string
	// BaseURL is the public root used for log links. Empty disables them.
	BaseURL        string
	LogDir         string
	ArtifactDir    string
	ImageRecipeDir string
	// LogTimeout caps container output streaming; zero means unlimited.
	LogTimeout   time.Duration
	GitHubAPIURL string
	// Snapcraft is the host binary for the host build type.
	Snapcraft string

	repos map[string]domain.RepoConfig
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &domain.ConfigurationError{Field: "config", Reason: err.Error()}
	}
	if len(raw) == 0 {
		return nil, &domain.ConfigurationError{Field: "config", Reason: "config seems completely empty"}
	}
	f := fields(raw)

	cfg := &Config{}
	var err error
	if cfg.WebhookSecret, err = f.requiredString("github_webhook_secret"); err != nil {
		return nil, err
	}
	appID, err := f.requiredInt("github_app_id")
	if err != nil {
		return nil, err
	}
	cfg.AppID = int64(appID)

	pem, err := f.requiredString("github_app_private_key")
	if err != nil {
		return nil, err
	}
	if cfg.PrivateKey, err = parsePrivateKey(pem); err != nil {
		return nil, err
	}

	if cfg.BuildType, err = f.requiredString("build_type"); err != nil {
		return nil, err
	}
	if !builder.IsSupported(cfg.BuildType) {
		return nil, &domain.ConfigurationError{
			Field:  "build_type",
			Reason: fmt.Sprintf("must be one of %s", strings.Join(builder.SupportedBuildTypes(), ", ")),
		}
	}

	if cfg.Port, err = f.int("port", DefaultPort); err != nil {
		return nil, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, &domain.ConfigurationError{Field: "port", Reason: "out of range"}
	}
	if cfg.Bind, err = f.string("bind", DefaultBind); err != nil {
		return nil, err
	}
	if cfg.Bind == "" {
		return nil, &domain.ConfigurationError{Field: "bind"}
	}
	if cfg.BaseURL, err = f.string("base_url", ""); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LogDir, err = f.string("log_dir", DefaultLogDir); err != nil {
		return nil, err
	}
	if cfg.ArtifactDir, err = f.string("artifact_dir", os.TempDir()); err != nil {
		return nil, err
	}
	if cfg.ImageRecipeDir, err = f.string("image_recipe_dir", DefaultImageRecipeDir); err != nil {
		return nil, err
	}
	if cfg.LogTimeout, err = f.duration("log_timeout", DefaultLogTimeout); err != nil {
		return nil, err
	}
	if cfg.GitHubAPIURL, err = f.string("github_api_url", ""); err != nil {
		return nil, err
	}
	if cfg.Snapcraft, err = f.string("snapcraft", ""); err != nil {
		return nil, err
	}

	if cfg.repos, err = parseRepos(raw["repos"]); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Repo looks up a repository by full name.
func (c *Config) Repo(name string) (domain.RepoConfig, bool) {
	repo, ok := c.repos[name]
	return repo, ok
}

// RepoNames lists the configured repositories, sorted.
func (c *Config) RepoNames() []string {
	names := make([]string, 0, len(c.repos))
	for name := range c.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// parsePrivateKey accepts PEM with literal "\n" sequences, as it arrives
// from environment-style values.
func parsePrivateKey(pem string) (*rsa.PrivateKey, error) {
	pem = strings.ReplaceAll(pem, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "github_app_private_key", Reason: err.Error()}
	}
	return key, nil
}

func parseRepos(v any) (map[string]domain.RepoConfig, error) {
	repos := map[string]domain.RepoConfig{}
	if v == nil {
		return repos, nil
	}
	entries, ok := v.(map[string]any)
	if !ok {
		return nil, &domain.ConfigurationError{Field: "repos", Reason: "must be a mapping"}
	}
	for name, def := range entries {
		if name == "" || !strings.Contains(name, "/") {
			return nil, &domain.ConfigurationError{Field: "repo name", Reason: fmt.Sprintf("%q is not owner/name", name)}
		}
		if def == nil {
			def = map[string]any{}
		}
		m, ok := def.(map[string]any)
		if !ok {
			return nil, &domain.ConfigurationError{Field: name, Reason: "must be a mapping"}
		}
		f := repoFields{fields: m, repo: name}

		repo := domain.RepoConfig{Name: name}
		var err error
		if repo.Channel, err = f.string("channel", DefaultChannel); err != nil {
			return nil, err
		}
		if repo.Channel == "" {
			return nil, &domain.ConfigurationError{Field: name + "'s channel"}
		}
		if repo.Token, err = f.string("token", ""); err != nil {
			return nil, err
		}
		if repo.Token == "" {
			return nil, &domain.ConfigurationError{Field: name + "'s token"}
		}
		if repo.Base, err = f.string("base", ""); err != nil {
			return nil, err
		}
		repos[name] = repo
	}
	return repos, nil
}

type fields map[string]any

func (f fields) string(key, def string) (string, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &domain.ConfigurationError{Field: key, Reason: "must be a string"}
	}
	return s, nil
}

func (f fields) requiredString(key string) (string, error) {
	s, err := f.string(key, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", &domain.ConfigurationError{Field: key}
	}
	return s, nil
}

func (f fields) int(key string, def int) (int, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := v.(int)
	if !ok {
		return 0, &domain.ConfigurationError{Field: key, Reason: "must be an integer"}
	}
	return n, nil
}

func (f fields) requiredInt(key string) (int, error) {
	n, err := f.int(key, 0)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, &domain.ConfigurationError{Field: key}
	}
	return n, nil
}

// duration accepts a Go duration string or a number of seconds.
func (f fields) duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return def, nil
	}
	var d time.Duration
	switch t := v.(type) {
	case int:
		d = time.Duration(t) * time.Second
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return 0, &domain.ConfigurationError{Field: key, Reason: err.Error()}
		}
		d = parsed
	default:
		return 0, &domain.ConfigurationError{Field: key, Reason: "must be a duration"}
	}
	if d < 0 {
		return 0, &domain.ConfigurationError{Field: key, Reason: "must not be negative"}
	}
	return d, nil
}

// repoFields prefixes errors with the repository name.
type repoFields struct {
	fields map[string]any
	repo   string
}

func (f repoFields) string(key, def string) (string, error) {
	s, err := fields(f.fields).string(key, def)
	if err != nil {
		return "", &domain.ConfigurationError{Field: f.repo + "'s " + key, Reason: "must be a string"}
	}
	return s, nil
}
