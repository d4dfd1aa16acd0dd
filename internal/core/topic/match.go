package topic

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
	`{`, `\{`,
	`}`, `\}`,
)

// Match reports whether topic is selected by the MQTT filter. "+" matches exactly
// one level and a trailing "#" matches any number of remaining levels.
func Match(filter, topic string) bool {
	if filter == topic {
		return true
	}

	levels := strings.Split(filter, Separator)
	for i, l := range levels {
		switch {
		case l == SingleLevel:
			levels[i] = "*"
		case l == MultiLevel && i == len(levels)-1:
			levels[i] = "**"
		case strings.ContainsAny(l, SingleLevel+MultiLevel):
			return false
		default:
			levels[i] = globEscaper.Replace(l)
		}
	}

	ok, err := doublestar.Match(strings.Join(levels, Separator), topic)
	return err == nil && ok
}
