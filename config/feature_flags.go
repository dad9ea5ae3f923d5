package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles. Every flag has a default and may be
// overridden with FEATURE_<NAME>=true|false.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// Send block files (or their captions) when a block opens.
	FeatureBlockDistribution = "distribution.blocks"

	// Message every member when the olymp changes phase.
	FeaturePhaseBroadcasts = "announce.phase_broadcasts"

	// Forward internal errors to the owner chat.
	FeatureOwnerErrorReports = "bot.owner_error_reports"

	// Serve /api/v1 next to the health probes.
	FeatureStatusAPI = "http.status_api"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	for _, f := range []Feature{
		{Name: FeatureBlockDistribution, Description: "Send problem blocks when they unlock", Enabled: true},
		{Name: FeaturePhaseBroadcasts, Description: "Broadcast phase changes to members", Enabled: true},
		{Name: FeatureOwnerErrorReports, Description: "Report internal errors to the owner", Enabled: true},
		{Name: FeatureStatusAPI, Description: "Expose olymp and queue status over HTTP", Enabled: true},
	} {
		f := f
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment applies overrides.
// Example: FEATURE_DISTRIBUTION_BLOCKS=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "distribution.blocks" -> "FEATURE_DISTRIBUTION_BLOCKS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether the feature is on. Unknown features are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	f, ok := ff.features[featureName]
	return ok && f.Enabled
}

// EnableFeature turns a feature on.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.set(featureName, true)
}

// DisableFeature turns a feature off.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.set(featureName, false)
}

func (ff *FeatureFlags) set(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	f, ok := ff.features[featureName]
	if !ok {
		return &FeatureFlagError{Feature: featureName, Message: "unknown feature"}
	}
	f.Enabled = enabled
	return nil
}

// GetAllFeatures returns a copy of all flags sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FeatureFlagError is returned for operations on unknown features.
type FeatureFlagError struct {
	Feature string
	Message string
}

func (e *FeatureFlagError) Error() string {
	return "feature flag " + e.Feature + ": " + e.Message
}
