package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateTieredNegativeWeightIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ServiceWeight = -0.1
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("negative service weight should be fatal")
	}
	if !strings.Contains(result.Fatals[0].Error(), "service_weight") {
		t.Fatalf("unexpected fatal: %v", result.Fatals[0])
	}
}

func TestValidateTieredNaNWeightIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ServiceWeight = math.NaN()
	if !cfg.ValidateTiered().HasFatals() {
		t.Fatal("NaN service weight should be fatal")
	}
}

func TestValidateTieredInvertedThresholdsIsFatal(t *testing.T) {
	cfg := Default()
	cfg.DelayThresholdSeconds = 6
	cfg.PriorityThresholdSeconds = 5
	if !cfg.ValidateTiered().HasFatals() {
		t.Fatal("delay threshold above priority threshold should be fatal")
	}
}

func TestValidateTieredNonPositiveCapIsFatal(t *testing.T) {
	cfg := Default()
	cfg.MaxTotalSeconds = 0
	if !cfg.ValidateTiered().HasFatals() {
		t.Fatal("zero max_total_seconds should be fatal")
	}
}

func TestValidateTieredTimeoutClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.SourceTimeoutSeconds = 0
	result := cfg.ValidateTiered()

	if result.HasFatals() {
		t.Fatalf("clamped timeout should be warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for clamped timeout")
	}
	if cfg.SourceTimeoutSeconds != 1 {
		t.Fatalf("SourceTimeoutSeconds = %d, want 1 (clamped)", cfg.SourceTimeoutSeconds)
	}
}

func TestValidateTieredHighTimeoutClamping(t *testing.T) {
	cfg := Default()
	cfg.SourceTimeoutSeconds = 999
	cfg.ValidateTiered()
	if cfg.SourceTimeoutSeconds != 120 {
		t.Fatalf("SourceTimeoutSeconds = %d, want 120 (clamped)", cfg.SourceTimeoutSeconds)
	}
}

func TestValidateTieredSuggestedDelayClamping(t *testing.T) {
	cfg := Default()
	cfg.SuggestedDelaySeconds = 301
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("unexpected fatals: %v", result.Fatals)
	}
	if cfg.SuggestedDelaySeconds != 300 {
		t.Fatalf("SuggestedDelaySeconds = %d, want 300", cfg.SuggestedDelaySeconds)
	}
}

func TestValidateTieredBatchWorkersClamping(t *testing.T) {
	cfg := Default()
	cfg.BatchWorkers = 0
	cfg.ValidateTiered()
	if cfg.BatchWorkers != 1 {
		t.Fatalf("BatchWorkers = %d, want 1", cfg.BatchWorkers)
	}

	cfg.BatchWorkers = 1000
	cfg.ValidateTiered()
	if cfg.BatchWorkers != 64 {
		t.Fatalf("BatchWorkers = %d, want 64", cfg.BatchWorkers)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.ServiceWeight = -1 // fatal
	cfg.LogFormat = "xml"  // warning
	result := cfg.ValidateTiered()

	if all := result.AllErrors(); len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestDefaultConfigHasNoErrors(t *testing.T) {
	result := Default().ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}

func TestLoadReadsFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "startup-optimizer.yaml")
	data := "service_weight: 0.5\npriority_threshold_seconds: 8\nboot_phase_markers: [boot]\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceWeight != 0.5 {
		t.Fatalf("ServiceWeight = %v, want 0.5", cfg.ServiceWeight)
	}
	if cfg.PriorityThresholdSeconds != 8 {
		t.Fatalf("PriorityThresholdSeconds = %v, want 8", cfg.PriorityThresholdSeconds)
	}
	if len(cfg.BootPhaseMarkers) != 1 || cfg.BootPhaseMarkers[0] != "boot" {
		t.Fatalf("BootPhaseMarkers = %v, want [boot]", cfg.BootPhaseMarkers)
	}
	if cfg.MaxTotalSeconds != 300 {
		t.Fatalf("MaxTotalSeconds = %v, want default 300", cfg.MaxTotalSeconds)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "startup-optimizer.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STARTUP_OPTIMIZER_SOURCE_TIMEOUT_SECONDS", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SourceTimeoutSeconds != 9 {
		t.Fatalf("SourceTimeoutSeconds = %d, want 9 from env", cfg.SourceTimeoutSeconds)
	}
}

func TestGetAuditDirPrefersConfigured(t *testing.T) {
	cfg := Default()
	cfg.AuditDir = "/tmp/audit-here"
	if got := cfg.GetAuditDir(); got != "/tmp/audit-here" {
		t.Fatalf("GetAuditDir() = %q", got)
	}
	cfg.AuditDir = ""
	if cfg.GetAuditDir() == "" {
		t.Fatal("GetAuditDir() should fall back to the platform data dir")
	}
}
