package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// FindScenarios returns the scenario files under dir, sorted. A file matches
// when its slash-separated path relative to dir matches filter (doublestar
// syntax, e.g. "merge/**"); an empty filter matches every .yaml or .yml file.
func FindScenarios(dir, filter string) ([]string, error) {
	if filter != "" && !doublestar.ValidatePattern(filter) {
		return nil, fmt.Errorf("invalid filter pattern %q", filter)
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			match, err := doublestar.Match(filter, filepath.ToSlash(rel))
			if err != nil || !match {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

// SuiteOptions configures RunSuite.
type SuiteOptions struct {
	// Parallel bounds concurrent scenarios; values below 1 mean 1.
	Parallel int

	// GoldenDir, when set, compares each snapshot with its golden file.
	// Scenarios without a golden file are checked by assertions only.
	GoldenDir string

	// Update rewrites golden files instead of comparing.
	Update bool

	// RunOptions are passed to every Run.
	RunOptions []Option
}

// GoldenStatus reports what happened to a scenario's golden file.
type GoldenStatus string

const (
	GoldenSkipped  GoldenStatus = ""
	GoldenMissing  GoldenStatus = "missing"
	GoldenMatched  GoldenStatus = "matched"
	GoldenMismatch GoldenStatus = "mismatch"
	GoldenUpdated  GoldenStatus = "updated"
)

// ScenarioOutcome is the result of one scenario file in a suite.
type ScenarioOutcome struct {
	Path   string       `json:"path"`
	Name   string       `json:"name,omitempty"`
	Pass   bool         `json:"pass"`
	Errors []string     `json:"errors,omitempty"`
	Events int          `json:"events"`
	Golden GoldenStatus `json:"golden,omitempty"`
}

// SuiteResult summarizes a suite run. Outcomes are in path order.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Outcomes []ScenarioOutcome `json:"outcomes"`
}

// RunSuite loads and runs every scenario file. Scenario failures are
// reported in the result; the error is only for cancellation.
//
// Each scenario runs in its own journal and store, so they are independent
// and run concurrently up to opts.Parallel.
func RunSuite(ctx context.Context, paths []string, opts SuiteOptions) (*SuiteResult, error) {
	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}

	outcomes := make([]ScenarioOutcome, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for i, path := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			outcomes[i] = runOne(gCtx, path, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SuiteResult{Total: len(paths), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

func runOne(ctx context.Context, path string, opts SuiteOptions) ScenarioOutcome {
	outcome := ScenarioOutcome{Path: path}
	fail := func(format string, args ...any) ScenarioOutcome {
		outcome.Pass = false
		outcome.Errors = append(outcome.Errors, fmt.Sprintf(format, args...))
		return outcome
	}

	scenario, err := LoadScenario(path)
	if err != nil {
		return fail("failed to load scenario: %v", err)
	}
	outcome.Name = scenario.Name

	result, err := RunContext(ctx, scenario, opts.RunOptions...)
	if err != nil {
		return fail("scenario execution failed: %v", err)
	}
	outcome.Pass = result.Pass
	outcome.Errors = append(outcome.Errors, result.Errors...)
	outcome.Events = len(result.Trace)

	if opts.GoldenDir == "" {
		return outcome
	}
	data, err := SnapshotJSON(scenario.Name, result)
	if err != nil {
		return fail("snapshot: %v", err)
	}
	if opts.Update {
		if err := WriteGolden(opts.GoldenDir, scenario.Name, data); err != nil {
			return fail("%v", err)
		}
		outcome.Golden = GoldenUpdated
		return outcome
	}
	match, err := CompareGolden(opts.GoldenDir, scenario.Name, data)
	switch {
	case errors.Is(err, ErrNoGolden):
		outcome.Golden = GoldenMissing
	case err != nil:
		return fail("golden %s: %v", GoldenPath(opts.GoldenDir, scenario.Name), err)
	case !match:
		outcome.Golden = GoldenMismatch
		return fail("trace differs from golden %s (rerun with --update to accept)", GoldenPath(opts.GoldenDir, scenario.Name))
	default:
		outcome.Golden = GoldenMatched
	}
	return outcome
}

// Failures returns the failed outcomes.
func (r *SuiteResult) Failures() []ScenarioOutcome {
	var out []ScenarioOutcome
	for _, o := range r.Outcomes {
		if !o.Pass {
			out = append(out, o)
		}
	}
	return out
}

// Summary renders a one-line summary.
func (r *SuiteResult) Summary() string {
	return fmt.Sprintf("%d scenarios, %d passed, %d failed", r.Total, r.Passed, r.Failed)
}
