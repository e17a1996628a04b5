package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/evosec/cloudscan/internal/compliance"
	"github.com/evosec/cloudscan/internal/config"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/output"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scan"
	"github.com/evosec/cloudscan/internal/scanners"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cloudscan",
		Short: "cloudscan — AWS security posture scanner",
	}
	root.AddCommand(newScanCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newScanCmd() *cobra.Command {
	var (
		account    string
		profile    string
		regions    []string
		level      string
		format     string
		outputFile string
		timeout    time.Duration
		cfgPath    string
		verbose    bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:           "scan",
		Short:         "Run a security scan against an AWS account",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := (&config.FileLoader{Path: cfgPath}).Load()
			if err != nil {
				return err
			}

			// Flags win over the config file; the config file wins over
			// built-in defaults.
			if profile == "" {
				profile = cfg.AWS.DefaultProfile
			}
			if len(regions) == 0 {
				regions = cfg.AWS.Regions
			}
			if !cmd.Flags().Changed("level") {
				level = cfg.Scan.Level
			}
			if !cmd.Flags().Changed("output") {
				format = cfg.Output.Format
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Scan.Timeout.Std()
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown output format %q (want table or json)", format)
			}

			log := newLogger(verbose)
			provider := &common.SharedConfigProvider{Profile: profile}

			ctx := cmd.Context()
			if account == "" {
				account, err = ambientIdentity(ctx, profile)
				if err != nil {
					return fmt.Errorf("resolve account id: %w (pass --account explicitly)", err)
				}
			}
			if len(regions) == 0 {
				factory := common.NewFactory(account, provider, logrus.NewEntry(log))
				regions, err = common.DiscoverRegions(ctx, factory)
				if err != nil {
					return fmt.Errorf("discover regions: %w (pass --regions explicitly)", err)
				}
			}

			table := compliance.NewDefaultTable()
			registry := scanners.DefaultExcluding(table, cfg.Scan.DisabledScanners)
			mgr := scan.NewManager(registry, table, provider, scan.Options{
				OverallTimeout:    timeout,
				PerScannerTimeout: cfg.Scan.ScannerTimeout.Std(),
			}, log)

			// The spinner goes to stderr so JSON output stays parseable.
			spinner, _ := pterm.DefaultSpinner.
				WithWriter(cmd.ErrOrStderr()).
				Start(fmt.Sprintf("Scanning account %s (%d regions, %s level)", account, len(regions), level))

			result, err := mgr.Run(ctx, models.ScanRequest{
				AccountID: account,
				Regions:   regions,
				Level:     models.ScanLevel(level),
			})
			if err != nil {
				if spinner != nil {
					spinner.Fail("Scan aborted")
				}
				return err
			}
			if spinner != nil {
				switch result.Status {
				case models.ScanStatusCompleted:
					spinner.Success(fmt.Sprintf("Scan completed: %d findings", result.Summary.Total))
				default:
					spinner.Warning(fmt.Sprintf("Scan %s: %d findings, %d scanners incomplete",
						result.Status, result.Summary.Total, len(result.FailedServices)))
				}
			}

			if outputFile != "" {
				if err := writeResultToFile(outputFile, result); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if format == "json" {
				return output.RenderJSON(w, result)
			}
			output.RenderSummary(w, result)
			fmt.Fprintln(w)
			output.RenderTable(w, result, output.TableOptions{Colored: cfg.Output.Colored && !noColor})
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "AWS account id to scan (default: the ambient credential identity)")
	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile name (default: uses environment / default profile)")
	cmd.Flags().StringSliceVar(&regions, "regions", nil, "Region(s) to scan (default: all opted-in regions)")
	cmd.Flags().StringVar(&level, "level", "standard", "Scan level: quick, standard, or deep")
	cmd.Flags().StringVar(&format, "output", "table", "Output format: table or json")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "Write the full JSON result to this file path (in addition to stdout output)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall scan timeout")
	cmd.Flags().StringVar(&cfgPath, "config", "", "Config file path (default: ~/.config/cloudscan/config.yaml)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable ANSI colors in table output")

	return cmd
}

// newLogger builds the CLI logger. Logging always goes to stderr; stdout is
// reserved for the rendered report.
func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

// ambientIdentity returns the account id of the ambient credential chain,
// optionally scoped to a shared-config profile.
func ambientIdentity(ctx context.Context, profile string) (string, error) {
	opts := []func(*awssdk.LoadOptions) error{}
	if profile != "" {
		opts = append(opts, awssdk.WithSharedConfigProfile(profile))
	}
	cfg, err := awssdk.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	if out.Account == nil {
		return "", fmt.Errorf("STS returned no account id")
	}
	return *out.Account, nil
}

// writeResultToFile serialises result as indented JSON and writes it to path,
// creating or overwriting the file. It does not affect stdout output.
func writeResultToFile(path string, result *models.ScanResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result file %q: %w", path, err)
	}
	return nil
}
