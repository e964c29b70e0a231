package queue

import (
	"fmt"
	"strings"
)

// qualifiedStructName derives a task name from the payload type, ignoring pointers.
func qualifiedStructName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
