package cbtml

import (
	"strings"
)

// lexer walks the template source line by line. Indentation depth is
// measured in units; the first indented line fixes the unit for the whole
// file and every later line must be a whole multiple of it.
type lexer struct {
	source string
	file   string
	lines  []string
	unit   string // "" until the first indented line is seen
	tokens []Token

	// nativeDepth is the indent level of an open style/script marker, or -1.
	nativeDepth int
}

// Tokenize lexes template source into a flat token stream.
func Tokenize(source, file string) ([]Token, error) {
	lx := &lexer{
		source:      source,
		file:        file,
		lines:       strings.Split(source, "\n"),
		nativeDepth: -1,
	}
	if err := lx.run(); err != nil {
		return nil, err
	}
	return lx.tokens, nil
}

func (lx *lexer) run() error {
	for i, line := range lx.lines {
		lineNo := i + 1

		if lx.nativeDepth >= 0 {
			done, err := lx.lexNativeLine(line, lineNo)
			if err != nil {
				return err
			}
			if !done {
				continue
			}
			// Line belongs outside the native block; fall through.
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		depth, content, err := lx.measureIndent(line, lineNo)
		if err != nil {
			return err
		}

		if err := lx.lexContent(content, depth, lineNo, len(line)-len(content)+1); err != nil {
			return err
		}
	}
	return nil
}

// lexNativeLine consumes one line inside a style/script block. It returns
// true when the line terminates the block and must be re-lexed normally.
func (lx *lexer) lexNativeLine(line string, lineNo int) (done bool, err error) {
	if strings.TrimSpace(line) == "" {
		lx.tokens = append(lx.tokens, Token{
			Kind:   TokenRawContent,
			Indent: lx.nativeDepth + 1,
			Line:   lineNo,
			Col:    1,
		})
		return false, nil
	}

	// A top-level native block can be the first indented construct in the
	// file; its first interior line then fixes the indentation unit.
	if lx.unit == "" {
		idx := 0
		for idx < len(line) && (line[idx] == ' ' || line[idx] == '\t') {
			idx++
		}
		if idx > 0 {
			lx.unit = line[:idx]
		}
	}

	inner := (lx.nativeDepth + 1) * len(lx.unit)
	prefix := strings.Repeat(lx.unit, lx.nativeDepth+1)
	if lx.unit != "" && strings.HasPrefix(line, prefix) {
		// Interior text is passed through uninterpreted, extra depth kept.
		lx.tokens = append(lx.tokens, Token{
			Kind:   TokenRawContent,
			Indent: lx.nativeDepth + 1,
			Line:   lineNo,
			Col:    inner + 1,
			Text:   line[inner:],
		})
		return false, nil
	}

	// Shallower line: the native block is over.
	lx.nativeDepth = -1
	return true, nil
}

// measureIndent returns the indent depth in units and the line content.
func (lx *lexer) measureIndent(line string, lineNo int) (int, string, error) {
	idx := 0
	for idx < len(line) && (line[idx] == ' ' || line[idx] == '\t') {
		idx++
	}
	prefix := line[:idx]
	content := line[idx:]

	if prefix == "" {
		return 0, content, nil
	}

	if strings.ContainsRune(prefix, ' ') && strings.ContainsRune(prefix, '\t') {
		return 0, "", errWithSource(lx.file, lineNo, 1, lx.source,
			"indentation mixes tabs and spaces")
	}

	if lx.unit == "" {
		lx.unit = prefix
	}

	if prefix[0] != lx.unit[0] {
		return 0, "", errWithSource(lx.file, lineNo, 1, lx.source,
			"indentation character differs from the one used earlier in this file")
	}
	if len(prefix)%len(lx.unit) != 0 {
		return 0, "", errWithSource(lx.file, lineNo, 1, lx.source,
			"indentation of %d is not a multiple of the file's %d-wide unit",
			len(prefix), len(lx.unit))
	}

	return len(prefix) / len(lx.unit), content, nil
}

// lexContent classifies one line's content and appends the resulting token.
// col is the 1-based column of the first content character.
func (lx *lexer) lexContent(content string, depth, lineNo, col int) error {
	tok := Token{Indent: depth, Line: lineNo, Col: col}

	switch {
	case strings.HasPrefix(content, "{#"):
		end := strings.Index(content, "#}")
		if end < 0 {
			return errWithSource(lx.file, lineNo, col, lx.source, "unterminated comment, expected '#}'")
		}
		tok.Kind = TokenComment
		tok.Text = strings.TrimSpace(content[2:end])

	case strings.HasPrefix(content, "{{"):
		end := strings.Index(content, "}}")
		if end < 0 {
			return errWithSource(lx.file, lineNo, col, lx.source, "unterminated expression, expected '}}'")
		}
		tok.Kind = TokenExpression
		tok.Text = strings.TrimSpace(content[2:end])

	case content == "|" || strings.HasPrefix(content, "| "):
		tok.Kind = TokenText
		tok.Text = strings.TrimPrefix(strings.TrimPrefix(content, "|"), " ")

	case strings.HasPrefix(content, "hook(") && strings.HasSuffix(content, ")"):
		name, data, err := parseHookCall(content)
		if err != nil {
			return errWithSource(lx.file, lineNo, col, lx.source, "%s", err.Error())
		}
		tok.Kind = TokenHook
		tok.HookName = name
		tok.HookData = data

	default:
		word, rest := splitKeyword(content)
		switch word {
		case "if":
			if rest == "" {
				return errWithSource(lx.file, lineNo, col, lx.source, "'if' requires a condition")
			}
			tok.Kind = TokenIf
			tok.Text = rest
		case "else":
			if rest == "" {
				tok.Kind = TokenElse
			} else if cond, ok := strings.CutPrefix(rest, "if "); ok && strings.TrimSpace(cond) != "" {
				tok.Kind = TokenElseIf
				tok.Text = strings.TrimSpace(cond)
			} else {
				return errWithSource(lx.file, lineNo, col, lx.source,
					"expected 'else' or 'else if <condition>', got %q", content)
			}
		case "end":
			if rest != "" {
				return errWithSource(lx.file, lineNo, col, lx.source, "'end' takes no arguments")
			}
			tok.Kind = TokenEnd
		case "for":
			loopVar, collection, ok := parseForHeader(rest)
			if !ok {
				return errWithSource(lx.file, lineNo, col, lx.source,
					"malformed loop, expected 'for <var> in <collection>'")
			}
			tok.Kind = TokenFor
			tok.LoopVar = loopVar
			tok.LoopCollection = collection
		case "extends":
			if rest == "" {
				return errWithSource(lx.file, lineNo, col, lx.source, "'extends' requires a parent template name")
			}
			tok.Kind = TokenExtends
			tok.Text = rest
		case "slot":
			if rest == "" {
				return errWithSource(lx.file, lineNo, col, lx.source, "'slot' requires a name")
			}
			tok.Kind = TokenSlot
			tok.Text = rest
		case "include":
			if rest == "" {
				return errWithSource(lx.file, lineNo, col, lx.source, "'include' requires a template path")
			}
			tok.Kind = TokenInclude
			tok.Text = rest
		case "raw":
			if rest == "" {
				return errWithSource(lx.file, lineNo, col, lx.source, "'raw' requires an expression")
			}
			tok.Kind = TokenRaw
			tok.Text = rest
		case "style":
			if rest == "" {
				tok.Kind = TokenStyleBlock
				lx.nativeDepth = depth
				break
			}
			return lx.lexElement(content, &tok)
		case "script":
			if rest == "" {
				tok.Kind = TokenScriptBlock
				lx.nativeDepth = depth
				break
			}
			return lx.lexElement(content, &tok)
		default:
			return lx.lexElement(content, &tok)
		}
	}

	lx.tokens = append(lx.tokens, tok)
	return nil
}

// lexElement parses "tag.class1.class2#id [k=v ...] inline text".
func (lx *lexer) lexElement(content string, tok *Token) error {
	pos := 0
	tag := scanIdent(content, &pos)
	if tag == "" {
		return errWithSource(lx.file, tok.Line, tok.Col+pos, lx.source,
			"unrecognized construct, expected an element, directive, '|' text line or '{{ expression }}'")
	}
	tok.Tag = tag

	for pos < len(content) {
		switch content[pos] {
		case '.':
			pos++
			class := scanIdent(content, &pos)
			if class == "" {
				return errWithSource(lx.file, tok.Line, tok.Col+pos, lx.source, "expected class name after '.'")
			}
			tok.Classes = append(tok.Classes, class)
		case '#':
			pos++
			id := scanIdent(content, &pos)
			if id == "" {
				return errWithSource(lx.file, tok.Line, tok.Col+pos, lx.source, "expected id after '#'")
			}
			if tok.ID != "" {
				return errWithSource(lx.file, tok.Line, tok.Col+pos, lx.source, "element declares more than one id")
			}
			tok.ID = id
		default:
			goto shorthandDone
		}
	}
shorthandDone:

	rest := content[pos:]
	restCol := tok.Col + pos

	// Optional bracketed attribute list.
	trimmed := strings.TrimLeft(rest, " ")
	if strings.HasPrefix(trimmed, "[") {
		skip := len(rest) - len(trimmed)
		end := strings.IndexByte(trimmed, ']')
		if end < 0 {
			return errWithSource(lx.file, tok.Line, restCol+skip, lx.source, "unterminated attribute list, expected ']'")
		}
		attrs, err := parseAttrs(trimmed[1:end])
		if err != nil {
			return errWithSource(lx.file, tok.Line, restCol+skip, lx.source, "%s", err.Error())
		}
		tok.Attributes = attrs
		rest = trimmed[end+1:]
	}

	if inline := strings.TrimSpace(rest); inline != "" {
		tok.InlineText = inline
	}

	tok.Kind = TokenElement
	lx.tokens = append(lx.tokens, *tok)
	return nil
}

func splitKeyword(content string) (word, rest string) {
	idx := strings.IndexByte(content, ' ')
	if idx < 0 {
		return content, ""
	}
	return content[:idx], strings.TrimSpace(content[idx+1:])
}

func parseForHeader(rest string) (loopVar, collection string, ok bool) {
	parts := strings.SplitN(rest, " in ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	loopVar = strings.TrimSpace(parts[0])
	collection = strings.TrimSpace(parts[1])
	if loopVar == "" || collection == "" || strings.ContainsRune(loopVar, ' ') {
		return "", "", false
	}
	return loopVar, collection, true
}

func parseHookCall(content string) (name, data string, err error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(content, "hook("), ")")
	inner = strings.TrimSpace(inner)
	if !strings.HasPrefix(inner, `"`) {
		return "", "", errHookSyntax
	}
	closing := strings.Index(inner[1:], `"`)
	if closing < 0 {
		return "", "", errHookSyntax
	}
	name = inner[1 : closing+1]
	rest := strings.TrimSpace(inner[closing+2:])
	if rest == "" {
		return name, "", nil
	}
	if !strings.HasPrefix(rest, ",") {
		return "", "", errHookSyntax
	}
	data = strings.TrimSpace(rest[1:])
	if data == "" {
		return "", "", errHookSyntax
	}
	return name, data, nil
}

var errHookSyntax = &hookSyntaxError{}

type hookSyntaxError struct{}

func (*hookSyntaxError) Error() string {
	return `malformed hook call, expected hook("name") or hook("name", data)`
}

// scanIdent consumes an identifier (letters, digits, '-', '_') at *pos.
func scanIdent(s string, pos *int) string {
	start := *pos
	for *pos < len(s) {
		c := s[*pos]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' {
			*pos++
			continue
		}
		break
	}
	// Identifiers must not start with a digit or separator.
	if start == *pos || s[start] >= '0' && s[start] <= '9' || s[start] == '-' {
		*pos = start
		return ""
	}
	return s[start:*pos]
}

// parseAttrs parses the interior of [k="v" k2={expr} k3=expr flag].
func parseAttrs(s string) ([]Attr, error) {
	var attrs []Attr
	pos := 0
	for {
		for pos < len(s) && s[pos] == ' ' {
			pos++
		}
		if pos >= len(s) {
			return attrs, nil
		}

		name := scanIdent(s, &pos)
		if name == "" {
			return nil, &attrSyntaxError{s[pos:]}
		}

		if pos >= len(s) || s[pos] != '=' {
			// Bare attribute, e.g. [disabled].
			attrs = append(attrs, Attr{Name: name})
			continue
		}
		pos++

		switch {
		case pos < len(s) && s[pos] == '"':
			end := strings.IndexByte(s[pos+1:], '"')
			if end < 0 {
				return nil, &attrSyntaxError{"unterminated quoted value"}
			}
			attrs = append(attrs, Attr{Name: name, Value: AttrValue{Value: s[pos+1 : pos+1+end]}})
			pos += end + 2
		case pos < len(s) && s[pos] == '{':
			end := strings.IndexByte(s[pos:], '}')
			if end < 0 {
				return nil, &attrSyntaxError{"unterminated '{' expression value"}
			}
			expr := strings.TrimSpace(s[pos+1 : pos+end])
			attrs = append(attrs, Attr{Name: name, Value: AttrValue{Dynamic: true, Value: expr}})
			pos += end + 1
		default:
			start := pos
			for pos < len(s) && s[pos] != ' ' {
				pos++
			}
			if pos == start {
				return nil, &attrSyntaxError{"missing attribute value after '='"}
			}
			attrs = append(attrs, Attr{Name: name, Value: AttrValue{Dynamic: true, Value: s[start:pos]}})
		}
	}
}

type attrSyntaxError struct{ detail string }

func (e *attrSyntaxError) Error() string {
	return "malformed attribute list near " + strings.TrimSpace(e.detail)
}
