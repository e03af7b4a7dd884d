package path

import "regexp"

func mustCompileDigits() *regexp.Regexp {
	return regexp.MustCompile(`^\[(\d+)\]$`)
}
