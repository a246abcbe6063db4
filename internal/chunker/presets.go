package ddchunker

import (
	"fmt"
	"strings"

	"github.com/anjor/ddar/internal/rabin"
	"github.com/anjor/ddar/internal/util/argparser"
	"github.com/anjor/ddar/internal/util/text"

	"github.com/pborman/getopt/v2"
	"github.com/pborman/options"
)

// Initializer turns `--opt=val` sub-arguments into a chunking configuration.
// On nil args it returns the help text as errors instead.
type Initializer func(args []string) (Config, []error)

type tuning struct {
	WindowSize int `getopt:"--window-size=[1:MaxChunk] Size of the rolling hash window"`
	MinSize    int `getopt:"--min-size=[1:MaxChunk]    Minimum chunk size: no boundary is tested before reaching it"`
	TargetSize int `getopt:"--target-size=[2:MaxChunk] Target chunk size, must be a power of 2. Boundaries are cut where the low log2(target) bits of the hash are all set"`
	MaxSize    int `getopt:"--max-size=[2:MaxChunk]    Maximum chunk size: a boundary is forced when reaching it"`
	Multiplier int `getopt:"--multiplier=[1:4294967295] Polynomial hash multiplier"`
}

var presets = map[string]struct {
	desc string
	tuning
}{
	"ddar-v1": {
		"The original ddar archive layout: minimum is 1/4 and maximum 4x the target.\n" +
			"Any parameter may be overridden.",
		tuning{
			WindowSize: rabin.DefaultWindow,
			MinSize:    1 << 14,
			TargetSize: 1 << 16,
			MaxSize:    1 << 18,
			Multiplier: rabin.DefaultMultiplier,
		},
	},
	"ddar-v2": {
		"Later ddar parameters: minimum is 1/4 and maximum 64x the target.\n" +
			"Any parameter may be overridden.",
		tuning{
			WindowSize: rabin.DefaultWindow,
			MinSize:    1 << 14,
			TargetSize: 1 << 16,
			MaxSize:    1 << 22,
			Multiplier: rabin.DefaultMultiplier,
		},
	},
}

var AvailableChunkers = map[string]Initializer{
	"ddar-v1": newPreset("ddar-v1"),
	"ddar-v2": newPreset("ddar-v2"),
	"rabin":   newCustom,
}

const DefaultChunker = "ddar-v2"

func newPreset(name string) Initializer {
	return func(args []string) (Config, []error) {
		p := presets[name]
		t := p.tuning
		return parseTuning(p.desc, &t, args, nil)
	}
}

func newCustom(args []string) (Config, []error) {
	t := tuning{Multiplier: rabin.DefaultMultiplier}
	return parseTuning(
		"Rabin-style rolling hash chunker with every size parameter given\n"+
			"explicitly. Requires --window-size, --min-size, --target-size and --max-size.",
		&t,
		args,
		[]string{"window-size", "min-size", "target-size", "max-size"},
	)
}

func parseTuning(desc string, t *tuning, args []string, mandatory []string) (cfg Config, initErrs []error) {

	optSet := getopt.New()
	if err := options.RegisterSet("", t, optSet); err != nil {
		return cfg, []error{fmt.Errorf("option set registration failed: %s", err)}
	}

	// on nil-args the "error" is the help text to be incorporated into
	// the larger help display
	if args == nil {
		return cfg, argparser.SubHelp(desc, optSet)
	}

	// bail early if getopt fails
	if initErrs = argparser.Parse(args, optSet); len(initErrs) > 0 {
		return
	}

	for _, o := range mandatory {
		if !optSet.IsSet(o) {
			initErrs = append(initErrs, fmt.Errorf("a value for --%s must be specified", o))
		}
	}
	if len(initErrs) > 0 {
		return
	}

	cfg = Config{
		WindowSize:      t.WindowSize,
		MinChunkSize:    t.MinSize,
		TargetChunkSize: t.TargetSize,
		MaxChunkSize:    t.MaxSize,
		Multiplier:      uint32(t.Multiplier),
	}
	if err := cfg.Validate(); err != nil {
		initErrs = append(initErrs, err)
	}

	return
}

// FromSpec parses a `name_opt1=val_opt2=val` chunker spec.
func FromSpec(spec string) (Config, []error) {
	if spec == "" {
		return Config{}, []error{fmt.Errorf(
			"a chunker must be specified as 'name_opt1_opt2...'. Available chunker names are: %s",
			text.AvailableMapKeys(AvailableChunkers),
		)}
	}

	args := strings.Split(spec, "_")
	init, exists := AvailableChunkers[args[0]]
	if !exists {
		return Config{}, []error{fmt.Errorf(
			"chunker '%s' not found. Available chunker names are: %s",
			args[0],
			text.AvailableMapKeys(AvailableChunkers),
		)}
	}

	for n := range args {
		if n > 0 {
			args[n] = "--" + args[n]
		}
	}

	return init(args)
}
