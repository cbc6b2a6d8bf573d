// Package numrange parses user-id range expressions like "1-3,5,7-9".
package numrange

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Pattern matches a range expression of the form "1-3,5,7-9". Leading zeros
// are not allowed and all numbers must be positive.
var Pattern = regexp.MustCompile(`^[1-9]\d*(?:-[1-9]\d*)?(?:,[1-9]\d*(?:-[1-9]\d*)?)*$`)

// Parse expands a range expression into a sorted list of distinct integers.
// Whitespace is ignored. Duplicate numbers are allowed and collapsed.
func Parse(rangeString string) ([]int, error) {
	cleaned := strings.ReplaceAll(rangeString, " ", "")
	if !Pattern.MatchString(cleaned) {
		return nil, fmt.Errorf("invalid range string: %q", rangeString)
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(cleaned, ",") {
		bounds := strings.SplitN(part, "-", 2)
		from, err := strconv.Atoi(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("invalid range string: %q", rangeString)
		}
		to := from
		if len(bounds) == 2 {
			to, err = strconv.Atoi(bounds[1])
			if err != nil {
				return nil, fmt.Errorf("invalid range string: %q", rangeString)
			}
			if from > to {
				return nil, fmt.Errorf("invalid range string: %q", rangeString)
			}
		}
		for i := from; i <= to; i++ {
			seen[i] = struct{}{}
		}
	}

	result := make([]int, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Ints(result)
	return result, nil
}
