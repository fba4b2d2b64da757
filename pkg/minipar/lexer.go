package minipar

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer produces tokens from MiniPar source text on demand. A Lexer is
// single-use: once it has yielded EOF (or an error) it keeps yielding it.
type Lexer struct {
	src  string
	pos  int
	line int

	done    bool
	last    Tok
	lastErr error
}

func NewLexer(src string) *Lexer {
	return &Lexer{
		src:  src,
		line: 1,
	}
}

// Scan tokenizes the whole source text. The returned slice always ends
// with an EOF token.
func Scan(src string) ([]Tok, error) {
	lx := NewLexer(src)
	tokens := make([]Tok, 0, len(src)/4)
	for {
		tok, err := lx.Next()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.kind == EOF {
			return tokens, nil
		}
	}
}

func (lx *Lexer) lexErr(format string, args ...interface{}) error {
	lx.done = true
	lx.lastErr = Err{
		reason:  ErrLex,
		message: fmt.Sprintf(format, args...),
		line:    lx.line,
	}
	return lx.lastErr
}

func (lx *Lexer) peekRune(offset int) rune {
	if lx.pos+offset >= len(lx.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.src[lx.pos+offset:])
	return r
}

// skipTrivia consumes whitespace and comments, returning the skipped text.
func (lx *Lexer) skipTrivia() (string, error) {
	start := lx.pos
	for lx.pos < len(lx.src) {
		rest := lx.src[lx.pos:]
		r, size := utf8.DecodeRuneInString(rest)

		switch {
		case unicode.IsSpace(r):
			if r == '\n' {
				lx.line++
			}
			lx.pos += size
		case r == '#':
			end := strings.IndexByte(rest, '\n')
			if end == -1 {
				end = len(rest)
			}
			lx.pos += end
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end == -1 {
				return "", lx.lexErr("unterminated block comment")
			}
			comment := rest[:end+4]
			lx.line += strings.Count(comment, "\n")
			lx.pos += len(comment)
		default:
			return lx.src[start:lx.pos], nil
		}
	}
	return lx.src[start:lx.pos], nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Next returns the next token in the source.
func (lx *Lexer) Next() (Tok, error) {
	if lx.done {
		return lx.last, lx.lastErr
	}

	trivia, err := lx.skipTrivia()
	if err != nil {
		return Tok{}, err
	}

	tok := Tok{line: lx.line, trivia: trivia}
	if lx.pos >= len(lx.src) {
		tok.kind = EOF
		lx.done = true
		lx.last = tok
		return tok, nil
	}

	start := lx.pos
	r := lx.peekRune(0)

	switch {
	case isIdentStart(r):
		for lx.pos < len(lx.src) && isIdentChar(lx.peekRune(0)) {
			_, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
			lx.pos += size
		}
		tok.lexeme = lx.src[start:lx.pos]
		if kind, isKeyword := keywords[tok.lexeme]; isKeyword {
			tok.kind = kind
		} else {
			tok.kind = Identifier
		}

	case isDigit(r):
		for lx.pos < len(lx.src) && isDigit(lx.peekRune(0)) {
			lx.pos++
		}
		if lx.peekRune(0) == '.' && isDigit(lx.peekRune(1)) {
			lx.pos++
			for lx.pos < len(lx.src) && isDigit(lx.peekRune(0)) {
				lx.pos++
			}
		}
		tok.kind = NumberLiteral
		tok.lexeme = lx.src[start:lx.pos]

	case r == '"':
		str, err := lx.scanString()
		if err != nil {
			return Tok{}, err
		}
		tok.kind = StringLiteral
		tok.str = str
		tok.lexeme = lx.src[start:lx.pos]

	default:
		matched := false
		for _, op := range operators {
			if strings.HasPrefix(lx.src[lx.pos:], op.lexeme) {
				tok.kind = op.kind
				tok.lexeme = op.lexeme
				lx.pos += len(op.lexeme)
				matched = true
				break
			}
		}
		if !matched {
			return Tok{}, lx.lexErr("unexpected character %q", r)
		}
	}

	return tok, nil
}

// scanString consumes a double-quoted literal starting at the current
// position and returns its decoded contents.
func (lx *Lexer) scanString() (string, error) {
	startLine := lx.line
	lx.pos++ // opening quote

	var buf strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch c {
		case '"':
			lx.pos++
			return buf.String(), nil
		case '\\':
			if lx.pos+1 >= len(lx.src) {
				lx.pos++
				continue
			}
			next := lx.src[lx.pos+1]
			switch next {
			case 'n':
				buf.WriteByte('\n')
			case 't':
				buf.WriteByte('\t')
			case 'r':
				buf.WriteByte('\r')
			case '"', '\\':
				buf.WriteByte(next)
			default:
				buf.WriteByte('\\')
				buf.WriteByte(next)
			}
			if next == '\n' {
				lx.line++
			}
			lx.pos += 2
		default:
			if c == '\n' {
				lx.line++
			}
			buf.WriteByte(c)
			lx.pos++
		}
	}

	lx.line = startLine
	return "", lx.lexErr("unterminated string literal")
}
