// Command jump-analyse resolves a recorded jump offline. The input holds one
// vertical position per line, as "y", "frame,y" or {"frame":n,"y":v}, in
// the same format the live sample feed accepts.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/banshee-data/jump.report/internal/charts"
	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/export"
	"github.com/banshee-data/jump.report/internal/fsutil"
	"github.com/banshee-data/jump.report/internal/kinclient"
	"github.com/banshee-data/jump.report/internal/kinematics"
	"github.com/banshee-data/jump.report/internal/serialmux"
	"github.com/banshee-data/jump.report/internal/units"
)

// passwordEnv names the environment variable holding the player directory
// password.
const passwordEnv = "JUMP_DIRECTORY_PASSWORD"

// manualBaseline is recorded as the baseline mode when -baseline is set.
const manualBaseline kinematics.BaselineMode = "manual"

// Config holds the parsed command line.
type Config struct {
	Input          string
	FPS            float64
	BodyMassKg     float64
	Baseline       float64 // NaN: mean of the first BaselineFrames samples
	BaselineFrames int
	Units          string
	TestID         string
	ResultsDir     string
	ParquetPath    string
	PNGPath        string
	PlayerID       int
	DirectoryURL   string
	Email          string
	NoColor        bool

	massSet bool
}

func main() {
	err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "jump-analyse: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("jump-analyse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Float64Var(&cfg.FPS, "fps", 30, "Capture frame rate")
	fs.Float64Var(&cfg.BodyMassKg, "mass", 75, "Body mass in kg")
	fs.Float64Var(&cfg.Baseline, "baseline", math.NaN(), "Standing position in px (default: mean of the first -baseline-frames samples)")
	fs.IntVar(&cfg.BaselineFrames, "baseline-frames", kinematics.DefaultBaselineWindow, "Samples averaged for the default baseline")
	fs.StringVar(&cfg.Units, "units", "cm", "Height units for the summary: "+units.GetValidHeightUnitsString())
	fs.StringVar(&cfg.TestID, "test-id", "", "Test id for -json (default: input file name)")
	fs.StringVar(&cfg.ResultsDir, "json", "", "Write <dir>/<test-id>/results.json")
	fs.StringVar(&cfg.ParquetPath, "parquet", "", "Write per-frame curves to this parquet file")
	fs.StringVar(&cfg.PNGPath, "png", "", "Write height and velocity plots to this PNG file")
	fs.IntVar(&cfg.PlayerID, "player", 0, "Look up body mass of this player in the directory")
	fs.StringVar(&cfg.DirectoryURL, "directory", kinclient.DefaultBaseURL, "Player directory base URL")
	fs.StringVar(&cfg.Email, "email", "", "Player directory login ($"+passwordEnv+" holds the password)")
	fs.BoolVar(&cfg.NoColor, "no-color", false, "Disable coloured output")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: jump-analyse [flags] <positions.csv | ->\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errors.New("expected exactly one input file")
	}
	cfg.Input = fs.Arg(0)
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "mass" {
			cfg.massSet = true
		}
	})

	if !units.IsValidHeight(cfg.Units) {
		return nil, fmt.Errorf("invalid -units %q, expected one of %s", cfg.Units, units.GetValidHeightUnitsString())
	}
	if cfg.BaselineFrames <= 0 {
		return nil, fmt.Errorf("-baseline-frames must be positive, got %d", cfg.BaselineFrames)
	}
	if cfg.TestID == "" {
		cfg.TestID = defaultTestID(cfg.Input)
	}
	return cfg, nil
}

func defaultTestID(input string) string {
	if input == "-" {
		return "stdin"
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}
	if cfg.NoColor {
		color.NoColor = true
	}

	in := stdin
	if cfg.Input != "-" {
		f, err := os.Open(cfg.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	ys, err := readPositions(in)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Input, err)
	}

	if cfg.PlayerID > 0 {
		if err := lookupBodyMass(ctx, cfg, stdout); err != nil {
			return err
		}
	}

	baseline, mode, err := resolveBaseline(ys, cfg)
	if err != nil {
		return err
	}
	res, err := kinematics.ResolvePositions(ys, baseline, cfg.FPS, cfg.BodyMassKg)
	if err != nil {
		if errors.Is(err, kinematics.ErrInsufficientData) {
			return fmt.Errorf("no jump resolved (%s): %w", kinematics.InsufficientReasonOf(err), err)
		}
		return err
	}

	if err := writeSummary(stdout, cfg, res); err != nil {
		return err
	}
	return writeOutputs(stdout, cfg, res, mode)
}

// readPositions parses every sample line of r. Explicit frame numbers must
// count up by one; control lines are not valid in a recording.
func readPositions(r io.Reader) ([]float64, error) {
	var ys []float64
	next := -1
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line, err := serialmux.ParseSampleLine(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		switch line.Kind {
		case serialmux.LineEmpty:
			continue
		case serialmux.LineCommand:
			return nil, fmt.Errorf("line %d: unexpected %s command", lineNo, line.Command)
		}
		if line.Frame >= 0 {
			if next >= 0 && line.Frame != next {
				return nil, fmt.Errorf("line %d: frame %d out of sequence, expected %d", lineNo, line.Frame, next)
			}
			next = line.Frame + 1
		}
		ys = append(ys, line.Y)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(ys) == 0 {
		return nil, errors.New("no samples")
	}
	return ys, nil
}

// resolveBaseline returns the -baseline value, or the mean of the first
// BaselineFrames samples computed by the window estimator.
func resolveBaseline(ys []float64, cfg *Config) (float64, kinematics.BaselineMode, error) {
	if !math.IsNaN(cfg.Baseline) {
		return cfg.Baseline, manualBaseline, nil
	}
	est := kinematics.NewWindowBaseline(cfg.BaselineFrames)
	for _, y := range ys {
		if b, ok := est.Update(y); ok {
			return b, est.Mode(), nil
		}
	}
	return 0, "", fmt.Errorf("need %d samples for the baseline, have %d", cfg.BaselineFrames, len(ys))
}

func lookupBodyMass(ctx context.Context, cfg *Config, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := kinclient.New(cfg.DirectoryURL, nil)
	if cfg.Email != "" {
		if _, err := client.Login(ctx, cfg.Email, os.Getenv(passwordEnv)); err != nil {
			return fmt.Errorf("player directory login: %w", err)
		}
		defer func() { _ = client.Logout(ctx) }()
	}
	p, err := client.Player(ctx, cfg.PlayerID)
	if err != nil {
		return fmt.Errorf("player %d: %w", cfg.PlayerID, err)
	}
	kg, ok := p.BodyMassKg()
	switch {
	case !ok:
		color.New(color.FgYellow).Fprintf(stdout, "player %d has no body mass on file, using %.1f kg\n", cfg.PlayerID, cfg.BodyMassKg)
	case cfg.massSet:
		color.New(color.FgYellow).Fprintf(stdout, "player %d weighs %.1f kg, -mass %.1f kg takes precedence\n", cfg.PlayerID, kg, cfg.BodyMassKg)
	default:
		cfg.BodyMassKg = kg
	}
	return nil
}

func writeSummary(w io.Writer, cfg *Config, res *kinematics.Result) error {
	s := res.Summary
	vu := units.VelocityUnitForHeight(cfg.Units)

	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()
	table.Header([]string{"Metric", "Value", "Unit"})
	table.Configure(func(c *tablewriter.Config) {
		c.Row.Alignment.Global = tw.AlignRight
	})

	highlight := color.New(color.FgGreen, color.Bold).SprintFunc()
	rows := [][]string{
		{"Max height", highlight(fmt.Sprintf("%.2f", units.ConvertHeight(s.MaxHeightCm, cfg.Units))), cfg.Units},
		{"Flight time", fmt.Sprintf("%.3f", s.FlightTimeS), "s"},
		{"Fall time", fmt.Sprintf("%.3f", s.FallTimeS), "s"},
		{"Takeoff velocity", fmt.Sprintf("%.2f", units.ConvertVelocity(s.TakeoffVelocityMS, vu)), vu},
		{"Average force", fmt.Sprintf("%.1f", s.AverageForceN), "N"},
		{"Estimated power", fmt.Sprintf("%.1f", s.EstimatedPowerW), "W"},
		{"Eccentric time", fmt.Sprintf("%.3f", s.EccentricTimeS), "s"},
		{"Concentric time", fmt.Sprintf("%.3f", s.ConcentricTimeS), "s"},
		{"Contact time", fmt.Sprintf("%.3f", s.ContactTimeS), "s"},
		{"Body mass", fmt.Sprintf("%.1f", s.BodyMassKg), "kg"},
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d frames at %.0f fps, baseline %.2f px, scale %.4f cm/px, takeoff frame %d, landing frame %d\n",
		len(res.Trajectory), res.FPS, res.Baseline, res.ScaleCmPerPx, res.Phases.Takeoff, res.Phases.Landing)
	return err
}

func writeOutputs(w io.Writer, cfg *Config, res *kinematics.Result, mode kinematics.BaselineMode) error {
	fsys := fsutil.OSFileSystem{}
	done := color.New(color.FgCyan).SprintFunc()

	if cfg.ResultsDir != "" {
		rec := db.NewJumpRecord(cfg.TestID, res, mode, time.Now())
		if cfg.PlayerID > 0 {
			rec.PlayerID = fmt.Sprint(cfg.PlayerID)
		}
		rec.Settings = map[string]interface{}{"mass": cfg.BodyMassKg, "fps": cfg.FPS}
		dir, err := export.WriteResultsArchive(fsys, cfg.ResultsDir, rec)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", done("wrote"), filepath.Join(dir, export.ArchiveFileName))
	}
	if cfg.ParquetPath != "" {
		if err := export.WriteCurvesParquet(fsys, cfg.ParquetPath, res); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", done("wrote"), cfg.ParquetPath)
	}
	if cfg.PNGPath != "" {
		f, err := fsys.Create(cfg.PNGPath)
		if err != nil {
			return err
		}
		if err := charts.RenderPNG(f, "Jump "+cfg.TestID, res); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", done("wrote"), cfg.PNGPath)
	}
	return nil
}
