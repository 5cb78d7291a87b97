// Package lexer implements the scanner that turns cbl source into tokens.
package lexer

import (
	"cbl-lang/internal/diag"
	"cbl-lang/internal/span"
	"cbl-lang/internal/token"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Lexer tokenizes source code into a sequence of tokens.
type Lexer struct {
	source string

	pos  int // current read position in source
	line int // current line (1-based)
	col  int // current column (1-based)

	diags []diag.Diagnostic
}

// New creates a new Lexer for the given source text.
func New(source string) *Lexer {
	return &Lexer{
		source: source,
		pos:    0,
		line:   1,
		col:    1,
	}
}

// Scan tokenizes source in one call.
func Scan(source string) ([]token.Token, []diag.Diagnostic) {
	return New(source).Tokenize()
}

// Tokenize scans the entire source and returns all tokens and diagnostics.
// The token slice always ends with exactly one EOF token.
func (l *Lexer) Tokenize() ([]token.Token, []diag.Diagnostic) {
	var tokens []token.Token
	for {
		tok := l.nextToken()
		tokens = append(tokens, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return tokens, l.diags
}

// ---- internal helpers ----

// peek returns the current character without advancing, or 0 if at end.
func (l *Lexer) peek() byte {
	if l.pos >= len(l.source) {
		return 0
	}
	return l.source[l.pos]
}

// peekNext returns the character after current, or 0 if at end.
func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

// advance consumes the current character and returns it.
func (l *Lexer) advance() byte {
	ch := l.source[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

// matchByte consumes the current character if it equals want.
func (l *Lexer) matchByte(want byte) bool {
	if l.pos >= len(l.source) || l.source[l.pos] != want {
		return false
	}
	l.advance()
	return true
}

// curPos returns the current position as a span.Position.
func (l *Lexer) curPos() span.Position {
	return span.Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// makeSpan returns a span from start to current position.
func (l *Lexer) makeSpan(start span.Position) span.Span {
	return span.Span{Start: start, End: l.curPos()}
}

// makeToken builds a token whose lexeme is the source text since start.
func (l *Lexer) makeToken(kind token.Kind, start span.Position) token.Token {
	return token.Token{Kind: kind, Lexeme: l.source[start.Offset:l.pos], Span: l.makeSpan(start)}
}

// skipWhitespaceAndComments skips blanks, newlines and // comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.source) {
		switch ch := l.source[l.pos]; {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.advance()
		case ch == '/' && l.peekNext() == '/':
			for l.pos < len(l.source) && l.source[l.pos] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

// addError records a lexical diagnostic.
func (l *Lexer) addError(code string, s span.Span, msg string) {
	l.diags = append(l.diags, diag.Errorf(diag.StageLexical, code, s, "%s", msg))
}

func (l *Lexer) addHinted(code string, s span.Span, msg, hint string) {
	d := diag.Errorf(diag.StageLexical, code, s, "%s", msg)
	d.Hint = hint
	l.diags = append(l.diags, d)
}

// ---- token reading ----

func (l *Lexer) nextToken() token.Token {
	l.skipWhitespaceAndComments()

	if l.pos >= len(l.source) {
		return token.Token{Kind: token.EOF, Lexeme: "", Span: l.makeSpan(l.curPos())}
	}

	start := l.curPos()
	ch := l.peek()

	if ch == '"' {
		return l.readString(start)
	}
	if isDigit(ch) {
		return l.readNumber(start)
	}
	if isIdentStart(ch) {
		return l.readIdentifier(start)
	}
	return l.readOperator(start)
}

// readString reads a double-quoted string literal. Strings may span lines
// and have no escape sequences.
func (l *Lexer) readString(start span.Position) token.Token {
	l.advance() // skip opening "

	for l.pos < len(l.source) && l.peek() != '"' {
		l.advance()
	}

	if l.pos >= len(l.source) {
		l.addError(diag.CodeUnterminatedString, l.makeSpan(start), "unterminated string")
		return l.makeToken(token.ILLEGAL, start)
	}

	l.advance() // skip closing "
	tok := l.makeToken(token.STRING, start)
	tok.Literal = l.source[start.Offset+1 : l.pos-1]
	return tok
}

// readNumber reads a number literal: digits with an optional fractional part.
func (l *Lexer) readNumber(start span.Position) token.Token {
	for l.pos < len(l.source) && isDigit(l.peek()) {
		l.advance()
	}

	// A '.' only belongs to the number when a digit follows it.
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance() // skip '.'
		for l.pos < len(l.source) && isDigit(l.peek()) {
			l.advance()
		}
	}

	tok := l.makeToken(token.NUMBER, start)
	// Out-of-range literals saturate to +Inf.
	val, _ := strconv.ParseFloat(tok.Lexeme, 64)
	tok.Literal = val
	return tok
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier(start span.Position) token.Token {
	for l.pos < len(l.source) && isIdentPart(l.peek()) {
		l.advance()
	}

	tok := l.makeToken(token.IDENT, start)
	tok.Kind = token.LookupIdent(tok.Lexeme)
	return tok
}

// readOperator reads punctuation and operators using longest match.
func (l *Lexer) readOperator(start span.Position) token.Token {
	ch := l.advance()

	switch ch {
	case '(':
		return l.makeToken(token.LPAREN, start)
	case ')':
		return l.makeToken(token.RPAREN, start)
	case '{':
		return l.makeToken(token.LBRACE, start)
	case '}':
		return l.makeToken(token.RBRACE, start)
	case ',':
		return l.makeToken(token.COMMA, start)
	case '.':
		return l.makeToken(token.DOT, start)
	case '-':
		return l.makeToken(token.MINUS, start)
	case '+':
		return l.makeToken(token.PLUS, start)
	case ';':
		return l.makeToken(token.SEMICOLON, start)
	case '*':
		return l.makeToken(token.STAR, start)
	case '/':
		return l.makeToken(token.SLASH, start)
	case '!':
		if l.matchByte('=') {
			return l.makeToken(token.NEQ, start)
		}
		return l.makeToken(token.BANG, start)
	case '=':
		if l.matchByte('=') {
			return l.makeToken(token.EQ, start)
		}
		return l.makeToken(token.ASSIGN, start)
	case '<':
		if l.matchByte('=') {
			return l.makeToken(token.LTE, start)
		}
		return l.makeToken(token.LT, start)
	case '>':
		if l.matchByte('=') {
			return l.makeToken(token.GTE, start)
		}
		return l.makeToken(token.GT, start)
	case '&':
		l.addHinted(diag.CodeUnexpectedChar, l.makeSpan(start), "unexpected character: '&'", "did you mean 'and'?")
		return l.makeToken(token.ILLEGAL, start)
	case '|':
		l.addHinted(diag.CodeUnexpectedChar, l.makeSpan(start), "unexpected character: '|'", "did you mean 'or'?")
		return l.makeToken(token.ILLEGAL, start)
	default:
		r := rune(ch)
		if ch >= utf8.RuneSelf {
			var size int
			r, size = utf8.DecodeRuneInString(l.source[start.Offset:])
			for n := 1; n < size && l.pos < len(l.source); n++ {
				l.advance()
			}
		}
		l.addError(diag.CodeUnexpectedChar, l.makeSpan(start), fmt.Sprintf("unexpected character: %q", r))
		return l.makeToken(token.ILLEGAL, start)
	}
}

// ---- character classification ----

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
