package devices

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"go.uber.org/zap"
)

//go:embed profiles/*.json
var builtinProfiles embed.FS

// Catalog holds the known pad model profiles.
type Catalog struct {
	mu        sync.RWMutex
	profiles  map[string]*types.PadProfileDefinition
	validator *Validator
	logger    *zap.Logger
}

// NewCatalog loads the built-in profiles plus any *.json in searchPaths.
// Profiles from search paths override built-in ones with the same model.
func NewCatalog(searchPaths []string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	c := &Catalog{
		profiles:  make(map[string]*types.PadProfileDefinition),
		validator: validator,
		logger:    logger,
	}

	entries, err := fs.Glob(builtinProfiles, "profiles/*.json")
	if err != nil {
		return nil, err
	}
	for _, name := range entries {
		data, err := builtinProfiles.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := c.add(name, data); err != nil {
			return nil, err
		}
	}

	for _, searchPath := range searchPaths {
		if err := c.loadDir(searchPath); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Catalog) loadDir(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("invalid profile path %s: %w", dir, err)
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read profile: %w", err)
		}
		if err := c.add(path, data); err != nil {
			return err
		}
		c.logger.Debug("Loaded pad profile", zap.String("path", path))
	}
	return nil
}

// Register validates and adds a profile from raw JSON.
func (c *Catalog) Register(data []byte) error {
	return c.add("inline", data)
}

func (c *Catalog) add(source string, data []byte) error {
	if err := c.validator.ValidateProfile(data); err != nil {
		return fmt.Errorf("validation failed for %s: %w", source, err)
	}

	var profile types.PadProfileDefinition
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	if err := c.validator.ValidateProfileDefinition(&profile); err != nil {
		return fmt.Errorf("validation failed for %s: %w", source, err)
	}

	c.mu.Lock()
	c.profiles[profile.PadProfile.Model] = &profile
	c.mu.Unlock()
	return nil
}

// Lookup returns the profile for a model identifier.
func (c *Catalog) Lookup(model string) (*types.PadProfileDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[strings.TrimSpace(model)]
	return p, ok
}

// Models returns all known model identifiers, sorted.
func (c *Catalog) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	models := make([]string, 0, len(c.profiles))
	for m := range c.profiles {
		models = append(models, m)
	}
	slices.Sort(models)
	return models
}

// Capabilities describes the given model. Unknown models get every feature
// enabled, the device will reject what it cannot do.
func (c *Catalog) Capabilities(model string) types.Capabilities {
	caps := types.Capabilities{
		SupportedModels: c.Models(),
		ModelHint:       model,
	}

	profile, ok := c.Lookup(model)
	if !ok {
		c.logger.Warn("Unknown pad model, assuming full feature set",
			zap.String("model", model),
			zap.Strings("known_models", caps.SupportedModels))
		caps.SupportsPower = true
		caps.SupportsLock = true
		caps.SupportsMode = true
		caps.SupportsSensitivity = true
		return caps
	}

	caps.SupportsPower = profile.Features.Power
	caps.SupportsLock = profile.Features.Lock
	caps.SupportsMode = profile.Features.Mode
	caps.SupportsSensitivity = profile.Features.Sensitivity
	return caps
}
