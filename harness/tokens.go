package harness

import (
	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

const (
	whitespaceCode = iota
	commaCode
	valueCode
	userCode
	sysCode
	realCode
	rssCode
)

var (
	whitespaceToken = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	commaToken      = parsly.NewToken(commaCode, ",", matcher.NewByte(','))
	valueToken      = parsly.NewToken(valueCode, "Value", &valueMatcher{})
	userToken       = parsly.NewToken(userCode, "user", &literalMatcher{text: "user"})
	sysToken        = parsly.NewToken(sysCode, "sys", &literalMatcher{text: "sys"})
	realToken       = parsly.NewToken(realCode, "real", &literalMatcher{text: "real"})
	rssToken        = parsly.NewToken(rssCode, "RSS", &literalMatcher{text: "RSS"})
)

// valueMatcher matches a run of bytes up to the next whitespace or comma.
// Numeric validation happens after the match so that a bad number is
// reported as such rather than as a missing field.
type valueMatcher struct{}

func (m *valueMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	matched := 0

	for i := cursor.Pos; i < cursor.InputSize; i++ {
		if isSpace(input[i]) || input[i] == ',' {
			break
		}
		matched++
	}

	return matched
}

type literalMatcher struct {
	text string
}

func (m *literalMatcher) Match(cursor *parsly.Cursor) int {
	end := cursor.Pos + len(m.text)
	if end > cursor.InputSize {
		return 0
	}

	if string(cursor.Input[cursor.Pos:end]) != m.text {
		return 0
	}

	return len(m.text)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
