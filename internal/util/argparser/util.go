package argparser

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"

	"github.com/anjor/ddar/internal/constants"
	"github.com/pborman/getopt/v2"
)

// ugly as sin due to lack of lookaheads :/
var indenter = regexp.MustCompile(`(?m)^([^\n])`)
var nonOptIndenter = regexp.MustCompile(`(?m)^\s{0,12}([^\s\n\-])`)
var dashStripper = regexp.MustCompile(`(?m)^(\s*)\-\-`)

// SubHelp renders the help of a sub-component (chunker preset, collector) as
// a list of "errors", so that it travels the same path as init failures.
func SubHelp(description string, optSet *getopt.Set) (sh []error) {

	sh = append(
		sh,
		errors.New(string(indenter.ReplaceAll(
			[]byte(description),
			[]byte(`  $1`),
		))),
	)

	if optSet == nil {
		return sh
	}

	b := bytes.NewBuffer(make([]byte, 0, 1024))
	optSet.PrintOptions(b)

	sh = append(sh, errors.New("  ------------\n   SubOptions"))
	sh = append(sh,
		errors.New(string(dashStripper.ReplaceAll(
			nonOptIndenter.ReplaceAll(
				b.Bytes(),
				[]byte(`              $1`),
			),
			[]byte(`$1  `),
		))),
	)

	return sh
}

var maxPlaceholder = regexp.MustCompile(`\bMaxChunk\b`)

// Parse runs getopt over args and enforces `[min:max]` range specs given as
// the parameter name of an option, on every option actually supplied.
// `MaxChunk` within a spec stands for the largest supported chunk size.
func Parse(args []string, optSet *getopt.Set) (argErrs []error) {

	if err := optSet.Getopt(args, nil); err != nil {
		argErrs = append(argErrs, err)
	}

	unexpectedArgs := optSet.Args()
	if len(unexpectedArgs) != 0 {
		argErrs = append(argErrs, fmt.Errorf(
			"unexpected free-form parameter(s): %s...",
			unexpectedArgs[0],
		))
	}

	// going through the limits when we are already in error is too confusing
	if len(argErrs) > 0 {
		return
	}

	optSet.VisitAll(func(o getopt.Option) {
		if spec := []byte(reflect.ValueOf(o).Elem().FieldByName("name").String()); len(spec) > 0 {

			var min, max int64 = math.MinInt64, math.MaxInt64

			if spec[0] == '[' && spec[len(spec)-1] == ']' {
				spec = maxPlaceholder.ReplaceAll(spec, []byte(fmt.Sprintf("%d", constants.MaxChunkSizeLimit)))

				if _, err := fmt.Sscanf(string(spec), "[%d:]", &min); err != nil {
					if _, err := fmt.Sscanf(string(spec), "[%d:%d]", &min, &max); err != nil {
						argErrs = append(argErrs, fmt.Errorf("Failed parsing '%s' as '[%%d:%%d]' - %s", spec, err))
						return
					}
				}
			} else {
				// not a spec we recognize
				return
			}

			if !o.Seen() {
				return
			}

			actual, err := strconv.ParseInt(o.Value().String(), 10, 64)
			if err != nil {
				argErrs = append(argErrs, err)
				return
			}

			if actual < min || actual > max {
				argErrs = append(argErrs, fmt.Errorf(
					"value '%d' supplied for %s out of range [%d:%d]",
					actual,
					o.LongName(),
					min, max,
				))
			}
		}
	})

	return
}
