package shader

import (
	"errors"
	"regexp"
)

// ErrUnterminatedBody means the entry point was found but its braces never close.
var ErrUnterminatedBody = errors.New("entry point body is not terminated")

// EntryBody returns the text between the braces of the function whose
// signature matches entry. found is false when there is no such signature.
//
// The body ends at the brace that balances the first '{' after the
// signature, so helper functions declared after main() are left out.
// Signatures and braces inside // and /* */ comments are ignored.
func EntryBody(src string, entry *regexp.Regexp) (body string, found bool, err error) {
	loc := signature(src, entry)
	if loc == nil {
		return "", false, nil
	}

	open := -1
	depth := 0
	for i := loc[1]; i < len(src); i++ {
		if skip := commentEnd(src, i); skip > i {
			i = skip - 1
			continue
		}
		switch src[i] {
		case '{':
			if open < 0 {
				open = i
			}
			depth++
		case '}':
			if open < 0 {
				return "", true, ErrUnterminatedBody
			}
			depth--
			if depth == 0 {
				return src[open+1 : i], true, nil
			}
		case ';':
			// a prototype such as "void main();" has no body
			if open < 0 {
				return "", true, ErrUnterminatedBody
			}
		}
	}
	return "", true, ErrUnterminatedBody
}

// signature returns the first match of entry that does not start inside a comment.
func signature(src string, entry *regexp.Regexp) []int {
	pos := 0
	for _, m := range entry.FindAllStringIndex(src, -1) {
		for pos < m[0] {
			if skip := commentEnd(src, pos); skip > pos {
				pos = skip
			} else {
				pos++
			}
		}
		if pos == m[0] {
			return m
		}
	}
	return nil
}

// commentEnd returns the index just past a comment starting at i, or i.
func commentEnd(src string, i int) int {
	if i+1 >= len(src) || src[i] != '/' {
		return i
	}
	switch src[i+1] {
	case '/':
		for j := i + 2; j < len(src); j++ {
			if src[j] == '\n' {
				return j
			}
		}
		return len(src)
	case '*':
		for j := i + 2; j+1 < len(src); j++ {
			if src[j] == '*' && src[j+1] == '/' {
				return j + 2
			}
		}
		return len(src)
	}
	return i
}
