package mime

import "strings"

// FromAcceptHeader derives a single ContentType from an Accept header. If
// the listed alternatives disagree on the main type (or none parses), there
// is no one answer and the zero value is returned with ok=false.
func FromAcceptHeader(value string) (ContentType, bool) {
	var (
		current ContentType
		found   bool
	)

	for _, alt := range strings.Split(value, ",") {
		mainType, _, _ := strings.Cut(strings.TrimSpace(alt), "/")
		ct := Parse(mainType)
		if !found {
			current, found = ct, true
			continue
		}

		if current != ct {
			return Unknown, false
		}
	}

	if !found || current == Unknown {
		return Unknown, false
	}

	return current, true
}
