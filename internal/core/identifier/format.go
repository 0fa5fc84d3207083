package identifier

import (
	"fmt"
	"regexp"
)

var idPattern = regexp.MustCompile(`^([A-Z]{2,3})-([0-9]{1,20})$`)

// Format creates the final identifier string: PREFIX-NNNNN, zero padded to digitLength.
func Format(prefix string, number uint64, digitLength int) string {
	return fmt.Sprintf("%s-%0*d", prefix, digitLength, number)
}

// Parse splits an identifier into prefix and numeric suffix.
// ok is false when id does not match ^[A-Z]{2,3}-[0-9]{1,20}$.
func Parse(id string) (prefix, number string, ok bool) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
