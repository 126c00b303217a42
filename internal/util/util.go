package util

import (
	"fmt"
	"strconv"
	"strings"
)

// IntToBinaryString renders the low count bits of v, most significant first.
func IntToBinaryString(v uint64, count int) string {
	var s strings.Builder
	for i := count - 1; i >= 0; i-- {
		if v&(1<<uint(i)) != 0 {
			s.WriteString("1")
		} else {
			s.WriteString("0")
		}
	}
	return s.String()
}

// ToInt accepts the loose number shapes seen in JSON payloads and query strings.
func ToInt(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0
		}
		return n
	default:
		n, err := strconv.Atoi(fmt.Sprint(x))
		if err != nil {
			return 0
		}
		return n
	}
}
