// Command projections prints the sea-level projection table for both location
// regimes across years, storm categories, and seawall defenses, then verifies
// the calculator invariants. It exits non-zero when any check fails.
//
// Usage:
//
//	go run ./cmd/projections -format csv -from 2025 -to 2100 -step 5
//	go run ./cmd/projections -format json -out projections.json -env
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/couchcryptid/flood-atlas-service/internal/config"
	"github.com/couchcryptid/flood-atlas-service/internal/domain"
)

// Representative queries for each location regime.
var locations = []struct {
	class string
	query string
}{
	{class: "us", query: "New York, USA"},
	{class: "global", query: "Mumbai, India"},
}

// Row is one line of the projection table.
type Row struct {
	Year          int     `json:"year"`
	LocationClass string  `json:"location_class"`
	Location      string  `json:"location"`
	StormCategory int     `json:"storm_category"`
	Defended      bool    `json:"defended"`
	RiseMeters    float64 `json:"rise_meters"`
	Critical      bool    `json:"critical"`
}

type options struct {
	format string
	out    string
	from   int
	to     int
	step   int
	useEnv bool
	check  bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("projections", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.format, "format", "csv", "output format: csv or json")
	fs.StringVar(&opts.out, "out", "", "output file (default stdout)")
	fs.IntVar(&opts.from, "from", domain.MinYear, "first year")
	fs.IntVar(&opts.to, "to", domain.MaxYear, "last year")
	fs.IntVar(&opts.step, "step", 5, "year increment")
	fs.BoolVar(&opts.useEnv, "env", false, "read projection constants from the environment")
	fs.BoolVar(&opts.check, "check", true, "verify calculator invariants")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if opts.step <= 0 || opts.from > opts.to {
		fmt.Fprintln(stderr, "invalid year range")
		return 2
	}

	params := domain.DefaultProjectionParams()
	if opts.useEnv {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(stderr, "FATAL: load config: %v\n", err)
			return 1
		}
		params = cfg.Projection
	}

	rows := buildTable(params, opts.from, opts.to, opts.step)
	if err := writeTable(rows, opts, stdout); err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}

	if !opts.check {
		return 0
	}
	phases := checkInvariants(params, params == domain.DefaultProjectionParams())
	if !report(phases, stderr) {
		return 1
	}
	return 0
}

func buildTable(p domain.ProjectionParams, from, to, step int) []Row {
	var rows []Row //nolint:prealloc // size depends on the flags
	for year := from; year <= to; year += step {
		for _, loc := range locations {
			for storm := 0; storm <= domain.MaxStorm; storm++ {
				for _, defended := range []bool{false, true} {
					in := domain.SimulationInputs{Year: year, Location: loc.query, StormCategory: storm, Defended: defended}
					rise := domain.ProjectRise(p, in)
					scene := domain.SceneState{RiseMeters: rise, StormCategory: storm, Defended: defended}
					rows = append(rows, Row{
						Year:          year,
						LocationClass: loc.class,
						Location:      loc.query,
						StormCategory: storm,
						Defended:      defended,
						RiseMeters:    rise,
						Critical:      scene.Critical(),
					})
				}
			}
		}
	}
	return rows
}

func writeTable(rows []Row, opts options, stdout io.Writer) (err error) {
	w := stdout
	if opts.out != "" {
		f, createErr := os.Create(opts.out)
		if createErr != nil {
			return fmt.Errorf("create %s: %w", opts.out, createErr)
		}
		defer func() { err = errors.Join(err, f.Close()) }()
		w = f
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"year", "location_class", "location", "storm_category", "defended", "rise_meters", "critical"})
		for _, r := range rows {
			_ = cw.Write([]string{
				strconv.Itoa(r.Year),
				r.LocationClass,
				r.Location,
				strconv.Itoa(r.StormCategory),
				strconv.FormatBool(r.Defended),
				strconv.FormatFloat(r.RiseMeters, 'f', 2, 64),
				strconv.FormatBool(r.Critical),
			})
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
}

// phase tracks pass/fail for a group of checks.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func checkInvariants(p domain.ProjectionParams, withReference bool) []*phase {
	phases := []*phase{
		checkMonotone(p),
		checkStormSurge(p),
		checkDefense(p),
	}
	if withReference {
		phases = append(phases, checkReferencePoints(p))
	}
	return phases
}

func checkMonotone(p domain.ProjectionParams) *phase {
	ph := &phase{name: "Base curve is non-decreasing"}
	for _, loc := range locations {
		prev := -1.0
		for year := domain.MinYear; year <= domain.MaxYear; year++ {
			rise := domain.ProjectRise(p, domain.SimulationInputs{Year: year, Location: loc.query})
			if rise < prev {
				ph.errorf("%s: %d rise %.2f below previous %.2f", loc.class, year, rise, prev)
			}
			prev = rise
		}
	}
	return ph
}

func checkStormSurge(p domain.ProjectionParams) *phase {
	ph := &phase{name: "Storm surge by category"}
	for c := 0; c <= domain.MaxStorm; c++ {
		want := float64(c) * p.StormPerCategory
		if c == 3 {
			want = p.Category3Surge
		}
		if got := p.CategoryAdd(c); math.Abs(got-want) > 1e-9 {
			ph.errorf("category %d: surge %.3f, want %.3f", c, got, want)
		}
	}
	return ph
}

func checkDefense(p domain.ProjectionParams) *phase {
	ph := &phase{name: "Seawall defense floors at zero"}
	for _, level := range []float64{0, 0.5, 1, 2.5, 3, 5} {
		in := domain.SimulationInputs{Sandbox: true, ManualSeaLevel: level, Defended: true}
		got := domain.ProjectRise(p, in)
		want := domain.Round2(math.Max(0, level-p.SeawallHeight))
		if got < 0 || math.Abs(got-want) > 1e-9 {
			ph.errorf("manual %.2f defended: %.2f, want %.2f", level, got, want)
		}
	}
	return ph
}

func checkReferencePoints(p domain.ProjectionParams) *phase {
	ph := &phase{name: "Reference projections"}
	cases := []struct {
		in   domain.SimulationInputs
		want float64
	}{
		{domain.SimulationInputs{Year: 2050, Location: "New York, USA"}, 0.30},
		{domain.SimulationInputs{Year: 2040, Location: "Mumbai, India"}, 0.10},
		{domain.SimulationInputs{Sandbox: true, ManualSeaLevel: 1.0, StormCategory: 3}, 3.0},
		{domain.SimulationInputs{Sandbox: true, ManualSeaLevel: 1.0, StormCategory: 3, Defended: true}, 0.5},
	}
	for _, tc := range cases {
		if got := domain.ProjectRise(p, tc.in); math.Abs(got-tc.want) > 1e-9 {
			ph.errorf("%s: %.2f, want %.2f", domain.DescribeScenario(tc.in), got, tc.want)
		}
	}
	return ph
}

func report(phases []*phase, w io.Writer) bool {
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-34s %s\n", p.name, status)
	}
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}
	return allPassed
}
