package dependency

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Dependency is an external binary the bot shells out to
type Dependency struct {
	Name        string
	Command     string
	Args        []string
	Required    bool
	Description string
	InstallCmd  string
}

// CheckResult is the outcome of probing one dependency
type CheckResult struct {
	Dependency Dependency
	Available  bool
	Version    string
	Error      error
}

// Checker probes dependencies by running them with a version flag
type Checker struct {
	timeout time.Duration
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewChecker(timeout time.Duration) *Checker {
	return &Checker{
		timeout: timeout,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// CheckAll probes every dependency in order
func (c *Checker) CheckAll(ctx context.Context, deps []Dependency) []CheckResult {
	results := make([]CheckResult, 0, len(deps))
	for _, dep := range deps {
		results = append(results, c.checkSingle(ctx, dep))
	}
	return results
}

// CheckRequired fails when any required dependency is missing
func (c *Checker) CheckRequired(ctx context.Context, deps []Dependency) error {
	var missing []string
	for _, dep := range deps {
		if !dep.Required {
			continue
		}
		if result := c.checkSingle(ctx, dep); !result.Available {
			missing = append(missing, dep.Name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Checker) checkSingle(ctx context.Context, dep Dependency) CheckResult {
	cmdCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.run(cmdCtx, dep.Command, dep.Args...)
	if err != nil {
		return CheckResult{Dependency: dep, Error: err}
	}

	// ffmpeg prints a long banner; the first line carries the version.
	version := strings.TrimSpace(string(output))
	if i := strings.IndexByte(version, '\n'); i >= 0 {
		version = version[:i]
	}
	return CheckResult{Dependency: dep, Available: true, Version: version}
}

// SystemDependencies lists the binaries needed for the configured resolver backend.
// ffmpeg is always required because dca encodes through it.
func SystemDependencies(backend string) []Dependency {
	return []Dependency{
		{
			Name:        "FFmpeg",
			Command:     "ffmpeg",
			Args:        []string{"-version"},
			Required:    true,
			Description: "Transcodes remote audio streams to Opus frames",
			InstallCmd:  "apt-get install ffmpeg | brew install ffmpeg",
		},
		{
			Name:        "yt-dlp",
			Command:     "yt-dlp",
			Args:        []string{"--version"},
			Required:    backend == "ytdlp",
			Description: "Resolves direct audio URLs for the ytdlp backend",
			InstallCmd:  "pip install yt-dlp | brew install yt-dlp",
		},
	}
}

// EnvironmentReport contains the results of environment validation
type EnvironmentReport struct {
	CheckTime       time.Time
	Results         []CheckResult
	RequiredMissing []string
	OptionalMissing []string
	Severity        string
}

// ValidateEnvironment probes the dependencies of the given resolver backend
func ValidateEnvironment(ctx context.Context, backend string) *EnvironmentReport {
	return NewChecker(10*time.Second).Report(ctx, SystemDependencies(backend))
}

// Report runs every check and classifies what is missing
func (c *Checker) Report(ctx context.Context, deps []Dependency) *EnvironmentReport {
	report := &EnvironmentReport{
		CheckTime: time.Now(),
		Results:   c.CheckAll(ctx, deps),
	}

	for _, result := range report.Results {
		if result.Available {
			continue
		}
		if result.Dependency.Required {
			report.RequiredMissing = append(report.RequiredMissing, result.Dependency.Name)
		} else {
			report.OptionalMissing = append(report.OptionalMissing, result.Dependency.Name)
		}
	}

	switch {
	case len(report.RequiredMissing) > 0:
		report.Severity = "CRITICAL"
	case len(report.OptionalMissing) > 0:
		report.Severity = "WARNING"
	default:
		report.Severity = "OK"
	}
	return report
}

func (r *EnvironmentReport) IsHealthy() bool {
	return len(r.RequiredMissing) == 0
}

// GenerateReport renders the report for the check command
func (r *EnvironmentReport) GenerateReport() string {
	var b strings.Builder

	b.WriteString("=== Environment Report ===\n")
	fmt.Fprintf(&b, "Check Time: %s\n", r.CheckTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Severity: %s\n\n", r.Severity)

	for _, result := range r.Results {
		status := "✓ Available"
		if !result.Available {
			status = "✗ Missing"
		}
		required := ""
		if result.Dependency.Required {
			required = " (Required)"
		}
		fmt.Fprintf(&b, "  %s: %s%s\n", result.Dependency.Name, status, required)
		if result.Version != "" {
			fmt.Fprintf(&b, "    Version: %s\n", result.Version)
		}
		if !result.Available && result.Dependency.InstallCmd != "" {
			fmt.Fprintf(&b, "    Install: %s\n", result.Dependency.InstallCmd)
		}
	}

	if len(r.RequiredMissing) > 0 {
		fmt.Fprintf(&b, "\nRequired dependencies missing: %s\n", strings.Join(r.RequiredMissing, ", "))
	}
	return b.String()
}
