//go:build !linux
// +build !linux

package stream

import "os"

var ReadOptimizations []Optimization

func DropCache(*os.File, int64, int64) error { return os.ErrInvalid }
