// Command pstest is the bug-finding test runner's CLI surface: point it at
// a registered assembly, pick an exploration strategy, and it reports
// quiescence or a bug with its schedule and bug trace. No cobra/viper
// appears anywhere in the retrieval pack, so this is the one ambient
// concern left on the standard library's flag package rather than the
// third-party CLI frameworks a web-service teacher might reach for.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/psharp-go/psharp"
	"github.com/psharp-go/psharp/pslog"
	"github.com/psharp-go/psharp/psoptions"
)

const (
	exitSuccess = 0
	exitBug     = 1
	exitConfig  = 2
	exitInternal = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pstest", flag.ContinueOnError)
	assembly := fs.String("assembly", "", "name of the registered test assembly to run")
	strategy := fs.String("strategy", "random", "exploration strategy: random|dfs|pct|replay")
	seed := fs.Int64("seed", 0, "seed for the random/pct strategies")
	iterations := fs.Int("iterations", 1000, "maximum number of iterations to explore")
	maxSteps := fs.Int("max-steps", 0, "maximum scheduling decisions per iteration (0 = unbounded)")
	timeout := fs.Int("timeout", 0, "wall-clock timeout in seconds (0 = unbounded)")
	replayFile := fs.String("replay", "", "path to a schedule-trace file to replay")
	verbose := fs.Int("verbose", 0, "log verbosity, 0-3")
	exportTree := fs.String("export-tree", "", "path to write the dfs strategy's explored prefix tree as Newick text (dfs only)")

	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	if *assembly == "" {
		fmt.Fprintln(os.Stderr, "pstest: --assembly is required")
		return exitConfig
	}
	build, ok := psharp.LookupAssembly(*assembly)
	if !ok {
		fmt.Fprintf(os.Stderr, "pstest: no assembly registered under %q\n", *assembly)
		return exitConfig
	}

	opts := []psoptions.Option{
		psoptions.WithStrategy(*strategy),
		psoptions.WithSeed(*seed),
		psoptions.WithMaxIterations(*iterations),
		psoptions.WithMaxSteps(*maxSteps),
	}
	if *timeout > 0 {
		opts = append(opts, psoptions.WithTimeout(time.Duration(*timeout)*time.Second))
	}
	if *verbose > 0 {
		logger, err := pslog.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "pstest: building logger: %v\n", err)
			return exitInternal
		}
		opts = append(opts, psoptions.WithLogger(logger))
	}
	if *replayFile != "" {
		data, err := os.ReadFile(*replayFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pstest: reading replay file: %v\n", err)
			return exitConfig
		}
		opts = append(opts, psoptions.WithStrategy("replay"), psoptions.WithReplayTrace(data))
	}

	assemblyDef, setup := build()
	campaign, err := psharp.NewCampaign(assemblyDef, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pstest: %v\n", err)
		return exitConfig
	}

	result, err := campaign.Run(setup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pstest: %v\n", err)
		return exitInternal
	}

	if *exportTree != "" {
		if tree, ok := campaign.ExportStateSpace(); ok {
			if err := os.WriteFile(*exportTree, []byte(tree), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "pstest: writing state-space export: %v\n", err)
				return exitInternal
			}
		} else {
			fmt.Fprintf(os.Stderr, "pstest: --export-tree has no effect under strategy %q\n", *strategy)
		}
	}

	fmt.Printf("pstest: %d iteration(s) explored\n", result.Iterations)
	if result.Err != nil {
		fmt.Printf("pstest: bug found: %v\n", result.Err)
		return exitBug
	}
	fmt.Println("pstest: quiescent, no bug found")
	return exitSuccess
}
