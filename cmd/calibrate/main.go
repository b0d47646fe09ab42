// Command calibrate derives risk thresholds from operator-labeled scan history
// and writes them where the server loads its calibration from.
//
//	calibrate run --scan-type token
//	calibrate show
//	calibrate token --subject ops@example.com
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/audit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/calibration"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/config"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/scanner"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/security"
)

const version = "1.0.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		slog.Error("calibrate failed", "error", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "calibrate",
		Usage:   "derive risk thresholds from labeled scan history",
		Version: version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file", EnvVars: []string{"CONFIG_PATH"}},
			&cli.StringFlag{Name: "data-dir", Usage: "directory holding audit.db (default: audit.data_dir)"},
			&cli.StringFlag{Name: "calibration-dir", Usage: "calibration store directory (default: calibration.data_dir)"},
			&cli.StringFlag{Name: "name", Usage: "calibration name (default: calibration.name)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "calibrate from labeled outcomes and save the result",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "scan-type", Usage: "token, transaction or signature; empty uses every scan"},
					&cli.BoolFlag{Name: "dry-run", Usage: "print the result without saving it"},
				},
				Action: runCalibration,
			},
			{
				Name:   "show",
				Usage:  "print the saved calibration",
				Action: showCalibration,
			},
			{
				Name:  "token",
				Usage: "issue an admin token for the outcomes API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Usage: "operator identity", Required: true},
					&cli.DurationFlag{Name: "ttl", Usage: "token lifetime (default: auth.token_ttl)"},
				},
				Action: issueToken,
			},
		},
	}
}

type settings struct {
	cfg            config.Config
	dataDir        string
	calibrationDir string
	name           string
}

func loadSettings(c *cli.Context) (settings, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return settings{}, fmt.Errorf("load config: %w", err)
	}

	s := settings{
		cfg:            cfg,
		dataDir:        cfg.Audit.DataDir,
		calibrationDir: cfg.Calibration.DataDir,
		name:           cfg.Calibration.Name,
	}
	if v := c.String("data-dir"); v != "" {
		s.dataDir = v
	}
	if v := c.String("calibration-dir"); v != "" {
		s.calibrationDir = v
	}
	if v := c.String("name"); v != "" {
		s.name = v
	}
	return s, nil
}

func runCalibration(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}

	scanType := c.String("scan-type")
	switch scanner.ScanType(scanType) {
	case "", scanner.ScanToken, scanner.ScanTransaction, scanner.ScanSignature:
	default:
		return fmt.Errorf("unknown scan type %q", scanType)
	}

	store, err := audit.OpenStore(s.dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	samples, err := store.LabeledSamples(c.Context, scanType)
	if err != nil {
		return err
	}
	if len(samples) < calibration.MinSamples {
		slog.Warn("Not enough labeled samples, keeping defaults",
			"samples", len(samples), "min", calibration.MinSamples)
	}

	cal := calibration.Calibrate(samples)
	slog.Info("Calibration computed",
		"samples", cal.SampleCount,
		"high", cal.HighThreshold,
		"medium", cal.MediumThreshold,
		"confidence_boost", cal.ConfidenceBoost)

	if !c.Bool("dry-run") {
		if err := calibration.NewStore(s.calibrationDir).Save(s.name, cal); err != nil {
			return err
		}
		slog.Info("Calibration saved", "dir", s.calibrationDir, "name", s.name)
	}
	return printJSON(c.App.Writer, cal)
}

func showCalibration(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}
	cal, err := calibration.NewStore(s.calibrationDir).Load(s.name)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, cal)
}

func issueToken(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}
	ttl := s.cfg.Auth.TokenTTL
	if c.IsSet("ttl") {
		ttl = c.Duration("ttl")
	}

	auth, err := security.NewAdminAuth(s.cfg.Auth.JWTSecret, ttl)
	if err != nil {
		return fmt.Errorf("%w (set JWT_SECRET)", err)
	}
	token, err := auth.IssueToken(c.String("subject"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, token)
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
