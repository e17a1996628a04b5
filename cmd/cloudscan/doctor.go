package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/evosec/cloudscan/internal/config"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
)

// DoctorResult is the structured output of cloudscan doctor. It can be
// serialised to JSON via --format=json or rendered as a human-readable table
// (default).
type DoctorResult struct {
	AWS struct {
		Profile     string `json:"profile,omitempty"`
		Credentials bool   `json:"credentials_ok"`
		AccountID   string `json:"account_id,omitempty"`
		RegionsOK   bool   `json:"regions_ok"`
		RegionCount int    `json:"region_count,omitempty"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Config struct {
		Path    string   `json:"path"`
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"config"`

	OverallHealthy bool `json:"overall_healthy"`
}

// doctorDeps are the external probes doctor runs. Tests substitute fakes.
type doctorDeps struct {
	identity func(ctx context.Context, profile string) (string, error)
	regions  func(ctx context.Context, account, profile string) ([]string, error)
	loader   config.Loader
}

func defaultDoctorDeps(cfgPath string) doctorDeps {
	return doctorDeps{
		identity: ambientIdentity,
		regions: func(ctx context.Context, account, profile string) ([]string, error) {
			provider := &common.SharedConfigProvider{Profile: profile}
			return common.DiscoverRegions(ctx, common.NewFactory(account, provider, nil))
		},
		loader: &config.FileLoader{Path: cfgPath},
	}
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doctor",
		Short:         "Run environment diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			profile, _ := cmd.Flags().GetString("profile")
			cfgPath, _ := cmd.Flags().GetString("config")
			result, err := runDoctor(cmd.Context(), defaultDoctorDeps(cfgPath), cmd.OutOrStdout(), format, profile)
			if err != nil {
				// Rendering failure — let Cobra/main handle it.
				return err
			}
			if !result.OverallHealthy {
				// Exit directly so no error text reaches main's stderr path.
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	cmd.Flags().String("profile", "", "AWS profile to use (default: credential chain)")
	cmd.Flags().String("config", "", "Config file path (default: ~/.config/cloudscan/config.yaml)")
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result. The returned error covers only
// rendering failures; callers must inspect result.OverallHealthy.
func runDoctor(ctx context.Context, deps doctorDeps, w io.Writer, format, profile string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, deps, profile)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a
// DoctorResult. It performs no rendering; callers decide how to present it.
func collectDoctorResult(ctx context.Context, deps doctorDeps, profile string) DoctorResult {
	var result DoctorResult

	// AWS: credentials → STS account id → region discovery.
	// An empty profile string selects the default credential chain.
	if profile != "" {
		result.AWS.Profile = profile
	}
	account, err := deps.identity(ctx, profile)
	if err != nil {
		result.AWS.Error = err.Error()
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = account
		regions, err := deps.regions(ctx, account, profile)
		if err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.RegionsOK = true
			result.AWS.RegionCount = len(regions)
		}
	}

	// Config: stat → load → validate (the file is optional).
	result.Config.Path = deps.loader.ConfigPath()
	if _, statErr := os.Stat(result.Config.Path); statErr == nil {
		result.Config.Present = true
		if _, loadErr := deps.loader.Load(); loadErr != nil {
			result.Config.Errors = []string{loadErr.Error()}
		} else {
			result.Config.Valid = true
		}
	} else if !os.IsNotExist(statErr) {
		// Stat error other than "not found" — present but unreadable.
		result.Config.Present = true
		result.Config.Errors = []string{statErr.Error()}
	}

	result.OverallHealthy = result.AWS.Credentials &&
		result.AWS.RegionsOK &&
		(!result.Config.Present || result.Config.Valid)

	return result
}

// renderDoctorTable writes the human-readable diagnostic output to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
		doctorPrint(w, "Regions API", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		if result.AWS.RegionsOK {
			doctorPrint(w, "Regions API", "OK", fmt.Sprintf("%d regions enabled", result.AWS.RegionCount))
		} else {
			doctorPrint(w, "Regions API", "FAIL", result.AWS.Error)
		}
	}

	fmt.Fprintln(w, "\nConfig:")
	if !result.Config.Present {
		doctorPrint(w, "config.yaml present", "Not found (optional)", "")
	} else {
		doctorPrint(w, "config.yaml present", "YES", result.Config.Path)
		if result.Config.Valid {
			doctorPrint(w, "Config valid", "OK", "")
		} else {
			for _, e := range result.Config.Errors {
				doctorPrint(w, "Config valid", "FAIL", e)
			}
		}
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
