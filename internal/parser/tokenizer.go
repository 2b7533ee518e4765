package parser

import "strings"

// Tokenize splits one log line into key=value pairs in a single pass.
// Values may be double-quoted to contain spaces; quotes are stripped.
// Tokens without '=' are ignored. Later duplicates win, matching the
// last-assignment behavior of a sequential scan.
func Tokenize(line string) map[string]string {
	out := make(map[string]string, 24)
	i := 0
	n := len(line)
	for i < n {
		// Skip separators.
		for i < n && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= n {
			break
		}
		eq := strings.IndexByte(line[i:], '=')
		if eq < 0 {
			break
		}
		sp := strings.IndexByte(line[i:], ' ')
		if sp >= 0 && sp < eq {
			// Bare token without '=', skip it.
			i += sp + 1
			continue
		}
		key := line[i : i+eq]
		i += eq + 1

		var value string
		if i < n && line[i] == '"' {
			i++
			end := strings.IndexByte(line[i:], '"')
			if end < 0 {
				value = line[i:]
				i = n
			} else {
				value = line[i : i+end]
				i += end + 1
			}
		} else {
			end := strings.IndexByte(line[i:], ' ')
			if end < 0 {
				value = line[i:]
				i = n
			} else {
				value = line[i : i+end]
				i += end
			}
		}
		if key != "" {
			out[key] = value
		}
	}
	return out
}
