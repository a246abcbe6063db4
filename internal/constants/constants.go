package constants

import (
	"os"
	"strconv"
)

const (
	// Upper bound for any configured maximum chunk size. A ring segment must
	// hold a whole chunk, so this also bounds the default buffer allocation.
	MaxChunkSizeLimit = 64 * 1024 * 1024
)

type Incomparabe [0]func()

var LongTests bool
var VeryLongTests bool

func init() {
	VeryLongTests = isTruthy("TEST_DDAR_VERY_LONG")
	LongTests = VeryLongTests || isTruthy("TEST_DDAR_LONG")
}

func isTruthy(varname string) bool {
	envStr := os.Getenv(varname)
	if envStr != "" {
		if num, err := strconv.ParseUint(envStr, 10, 64); err != nil || num != 0 {
			return true
		}
	}
	return false
}

var PerformSanityChecks = true
