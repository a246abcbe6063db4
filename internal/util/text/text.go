package text

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

func Commify(inVal int) string {
	return humanize.Comma(int64(inVal))
}

func Commify64(inVal int64) string {
	return humanize.Comma(inVal)
}

// AvailableMapKeys renders the keys of any string-keyed map as a sorted,
// quoted, comma separated list.
func AvailableMapKeys(m interface{}) string {
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Map {
		panic(fmt.Sprintf("AvailableMapKeys called with a %s", v.Kind()))
	}

	avail := make([]string, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		avail = append(avail, fmt.Sprintf(`'%s'`, iter.Key().String()))
	}
	sort.Strings(avail)
	return strings.Join(avail, ", ")
}
