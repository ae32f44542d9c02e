package engine

import "strings"

const argSeparator = "||"

type parsedCommand struct {
	Name string
	Args string
}

// parseCommand strips the command prefix and splits the body into a
// lowercased command name plus the raw argument text. The argument
// text is deliberately not re-tokenized here; each command owns its
// own grammar.
func parseCommand(body, prefix string) (parsedCommand, bool) {
	if prefix == "" || !strings.HasPrefix(body, prefix) {
		return parsedCommand{}, false
	}
	rest := body[len(prefix):]
	name, args, _ := strings.Cut(rest, " ")
	return parsedCommand{
		Name: strings.ToLower(strings.TrimSpace(name)),
		Args: strings.TrimSpace(args),
	}, true
}

// splitKeywordContent applies the shared addlist/updatelist grammar:
// prefer the "kw || content" split when a separator is present, else
// the first whitespace-delimited token is the keyword and the rest is
// content. Content keeps any further separators verbatim.
func splitKeywordContent(args string) (keyword, content string) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", ""
	}
	if strings.Contains(args, argSeparator) {
		left, right, _ := strings.Cut(args, argSeparator)
		return strings.TrimSpace(left), strings.TrimSpace(right)
	}
	left, right, _ := strings.Cut(args, " ")
	return strings.TrimSpace(left), strings.TrimSpace(right)
}
