package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/saugkim/spicecore/pkg/analysis"
	"github.com/saugkim/spicecore/pkg/circuit"
	"github.com/saugkim/spicecore/pkg/netlist"
	"github.com/saugkim/spicecore/pkg/output"
	"github.com/saugkim/spicecore/pkg/util"
)

func main() {
	chartPath := flag.String("o", "", "write results as an HTML chart")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: spicecore [-o out.html] <netlist>")
		os.Exit(1)
	}

	if err := run(flag.Arg(0), *chartPath); err != nil {
		fmt.Fprintf(os.Stderr, "spicecore: %v\n", err)
		os.Exit(1)
	}
}

func run(path, chartPath string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	deck, err := netlist.Parse(string(content))
	if err != nil {
		return err
	}
	if !deck.HasAnalysis {
		return fmt.Errorf("%s: no analysis card", path)
	}

	cfg := analysis.DefaultConfig()
	if err := cfg.ApplyOptions(deck.Options); err != nil {
		return err
	}

	isComplex := deck.Analysis == netlist.AnalysisAC || deck.Analysis == netlist.AnalysisNoise
	ckt := circuit.NewWithComplex(deck.Title, isComplex)
	if err := ckt.BuildFromDeck(deck); err != nil {
		return err
	}
	defer ckt.Destroy()

	an, xKey, err := buildAnalysis(deck, cfg)
	if err != nil {
		return err
	}

	if err := an.Setup(ckt); err != nil {
		return err
	}
	if err := an.Execute(context.Background()); err != nil {
		return err
	}

	results := an.Results()
	printResults(deck, results)

	if chartPath != "" {
		f, err := os.Create(chartPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return output.RenderLineChart(f, deck.Title, xKey, results)
	}
	return nil
}

func buildAnalysis(deck *netlist.Deck, cfg *analysis.Config) (analysis.Analysis, string, error) {
	switch deck.Analysis {
	case netlist.AnalysisTRAN:
		cfg.UIC = deck.Tran.UIC
		tr := analysis.NewTransient(cfg, deck.Tran.TStart, deck.Tran.TStop,
			deck.Tran.TStep, deck.Tran.TMax, deck.Tran.UIC)
		return tr, "TIME", nil

	case netlist.AnalysisAC:
		ac := analysis.NewAC(cfg, deck.AC.FStart, deck.AC.FStop, deck.AC.Points, deck.AC.Sweep)
		return ac, "FREQ", nil

	case netlist.AnalysisDC:
		sources := []string{deck.DC.Source1}
		starts := []float64{deck.DC.Start1}
		stops := []float64{deck.DC.Stop1}
		incs := []float64{deck.DC.Increment1}
		if deck.DC.Source2 != "" {
			sources = append(sources, deck.DC.Source2)
			starts = append(starts, deck.DC.Start2)
			stops = append(stops, deck.DC.Stop2)
			incs = append(incs, deck.DC.Increment2)
		}
		dc, err := analysis.NewDCSweep(cfg, sources, starts, stops, incs)
		return dc, "SWEEP1", err

	case netlist.AnalysisNoise:
		no := analysis.NewNoise(cfg, deck.Noise.Output, deck.Noise.FStart,
			deck.Noise.FStop, deck.Noise.Points, deck.Noise.Sweep)
		return no, "FREQ", nil

	default:
		return analysis.NewOP(cfg), "", nil
	}
}

func printResults(deck *netlist.Deck, results map[string][]float64) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	switch deck.Analysis {
	case netlist.AnalysisOP:
		for _, name := range names {
			vals := results[name]
			if len(vals) == 0 {
				continue
			}
			unit := "V"
			if name[0] == 'I' {
				unit = "A"
			}
			fmt.Printf("%-12s %s\n", name, util.FormatValueFactor(vals[0], unit))
		}

	default:
		// Sweep-style results: one line per point for the lead vectors.
		key := "TIME"
		if _, ok := results[key]; !ok {
			if _, ok := results["FREQ"]; ok {
				key = "FREQ"
			} else {
				key = "SWEEP1"
			}
		}
		xs := results[key]
		fmt.Printf("%d points (%s)\n", len(xs), key)
		for _, name := range names {
			if name == key {
				continue
			}
			vals := results[name]
			if len(vals) != len(xs) || len(xs) == 0 {
				continue
			}
			fmt.Printf("%-16s last=%s\n", name, util.FormatValueFactor(vals[len(vals)-1], ""))
		}
	}
}
