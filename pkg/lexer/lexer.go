package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/token"
	"github.com/xplshn/nhla/pkg/util"
)

// StringAllocator interns a string literal and returns its address.
type StringAllocator interface {
	CreateStringConstant(text string) int
}

// Preprocess strips comments and layout from the raw source lines, replaces
// every string literal by the address strs assigns to it, and tokenizes the
// result into one stream. A LineMark token separates consecutive lines and the
// stream ends with EOF.
func Preprocess(lines []string, strs StringAllocator, cfg *config.Config, warn *util.Warner) ([]token.Token, error) {
	var toks []token.Token
	for i, raw := range lines {
		lineNum := i + 1
		if i > 0 {
			toks = append(toks, token.Token{Type: token.LineMark, Line: lineNum - 1})
		}
		text, err := extractStrings(stripComment(raw), strs, lineNum)
		if err != nil {
			return nil, err
		}
		text = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(text, "\t", " ")))
		l := NewLexer([]rune(text), lineNum, cfg, warn)
		for {
			tok, err := l.Next()
			if err != nil {
				return nil, err
			}
			if tok.Type == token.EOF {
				break
			}
			toks = append(toks, tok)
		}
	}
	toks = append(toks, token.Token{Type: token.EOF, Line: len(lines)})
	return toks, nil
}

// stripComment drops everything from the first // that is not inside quotes.
func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '"':
			inString = !inString
		case !inString && line[i] == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

func extractStrings(line string, strs StringAllocator, lineNum int) (string, error) {
	if !strings.Contains(line, `"`) {
		return line, nil
	}
	var sb strings.Builder
	rest := line
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		end := strings.IndexByte(rest[start+1:], '"')
		if end < 0 {
			return "", util.Errorf(util.MalformedLiteral, lineNum, "unterminated string literal %s", rest[start:])
		}
		literal := rest[start+1 : start+1+end]
		sb.WriteString(rest[:start])
		// Spaces keep the address from fusing with neighbouring tokens.
		sb.WriteString(" " + strconv.Itoa(strs.CreateStringConstant(literal)) + " ")
		rest = rest[start+end+2:]
	}
}

type Lexer struct {
	source []rune
	line   int
	pos    int
	column int
	cfg    *config.Config
	warn   *util.Warner
}

func NewLexer(source []rune, line int, cfg *config.Config, warn *util.Warner) *Lexer {
	return &Lexer{source: source, line: line, column: 1, cfg: cfg, warn: warn}
}

func (l *Lexer) Next() (token.Token, error) {
	l.skipWhitespace()
	startPos, startCol := l.pos, l.column

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol), nil
	}

	ch := l.peek()
	if isIdentStart(ch) {
		return l.identifierOrKeyword(startPos, startCol)
	}
	if unicode.IsDigit(ch) {
		return l.numberLiteral(startPos, startCol)
	}

	l.advance()
	switch ch {
	case '(':
		return l.makeToken(token.LParen, "", startPos, startCol), nil
	case ')':
		return l.makeToken(token.RParen, "", startPos, startCol), nil
	case '[':
		return l.makeToken(token.LBracket, "", startPos, startCol), nil
	case ']':
		return l.makeToken(token.RBracket, "", startPos, startCol), nil
	case ',':
		return l.makeToken(token.Comma, "", startPos, startCol), nil
	case ':':
		return l.makeToken(token.Colon, "", startPos, startCol), nil
	case '+':
		return l.makeToken(token.Plus, "", startPos, startCol), nil
	case '-':
		return l.makeToken(token.Minus, "", startPos, startCol), nil
	case '*':
		return l.makeToken(token.Star, "", startPos, startCol), nil
	case '/':
		return l.makeToken(token.Slash, "", startPos, startCol), nil
	case '%':
		return l.makeToken(token.Rem, "", startPos, startCol), nil
	case '&':
		return l.makeToken(token.And, "", startPos, startCol), nil
	case '|':
		return l.makeToken(token.Or, "", startPos, startCol), nil
	case '^':
		return l.makeToken(token.Xor, "", startPos, startCol), nil
	case '>':
		return l.makeToken(token.Store, "", startPos, startCol), nil
	case '!':
		return l.makeToken(token.Word, "", startPos, startCol), nil
	case '?':
		return l.makeToken(token.Byte, "", startPos, startCol), nil
	case '#':
		return l.makeToken(token.Hash, "", startPos, startCol), nil
	case '=':
		return l.makeToken(token.Eq, "", startPos, startCol), nil
	case '<':
		return l.makeToken(token.Lt, "", startPos, startCol), nil
	}

	return token.Token{}, util.Errorf(util.MalformedExpression, l.line, "unexpected character '%c'", ch)
}

func isIdentStart(ch rune) bool { return ch == '$' || ch == '_' || (ch >= 'a' && ch <= 'z') }

func isIdentPart(ch rune) bool {
	return ch == '_' || ch == '.' || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9')
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	l.pos++
	l.column++
	return ch
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol int) token.Token {
	return token.Token{
		Type: tokType, Value: value, Line: l.line, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespace() {
	for l.peek() == ' ' {
		l.advance()
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol int) (token.Token, error) {
	l.advance()
	for isIdentPart(l.peek()) {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	if value == "$" || (value[0] == '$' && !isIdentStart(rune(value[1]))) {
		return token.Token{}, util.Errorf(util.MalformedExpression, l.line, "bad identifier '%s'", value)
	}
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		return l.makeToken(tokType, "", startPos, startCol), nil
	}
	return l.makeToken(token.Ident, value, startPos, startCol), nil
}

func (l *Lexer) numberLiteral(startPos, startCol int) (token.Token, error) {
	base := 10
	if l.peek() == '0' && l.peekNext() == 'x' && l.cfg.IsFeatureEnabled(config.FeatHexLiterals) {
		l.advance()
		l.advance()
		base = 16
	}
	digitsStart := l.pos
	for isIdentPart(l.peek()) {
		l.advance()
	}
	digits := string(l.source[digitsStart:l.pos])
	val, err := strconv.ParseInt(digits, base, 64)
	if err != nil || digits == "" {
		return token.Token{}, util.Errorf(util.MalformedExpression, l.line, "bad number '%s'", string(l.source[startPos:l.pos]))
	}
	if val > int64(l.cfg.MaxWord()) {
		l.warn.Warn(config.WarnOverflow, l.line, "constant %s does not fit in a word", string(l.source[startPos:l.pos]))
	}
	return l.makeToken(token.Number, strconv.FormatInt(val, 10), startPos, startCol), nil
}
