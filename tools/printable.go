package tools

import "unicode"

type printableType interface {
	~string | ~[]rune | ~[]byte
}

// IsPrintable strips non-printable runes from v, so that raw protocol input
// can be logged without control characters mangling the output.
func IsPrintable[T printableType](v T) string {
	var result []rune

	switch v := any(v).(type) {
	case string:
		for _, r := range v {
			if unicode.IsPrint(r) {
				result = append(result, r)
			}
		}
	case []rune:
		for _, r := range v {
			if unicode.IsPrint(r) {
				result = append(result, r)
			}
		}
	case []byte:
		for _, r := range v {
			if unicode.IsPrint(rune(r)) {
				result = append(result, rune(r))
			}
		}
	}
	return string(result)
}
