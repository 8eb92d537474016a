package cbtml

import (
	"fmt"
	"strings"
)

// NodeKind discriminates AST node variants.
type NodeKind int

const (
	NodeDocument NodeKind = iota
	NodeElement
	NodeText
	NodeExpression
	NodeRaw
	NodeConditional
	NodeForLoop
	NodeSlot
	NodeInclude
	NodeStyle
	NodeScript
	NodeComment
	NodeHook
)

// Node is one AST node. Children are owned exclusively by their parent, so
// the tree is acyclic by construction.
type Node struct {
	Kind NodeKind
	Line int
	Col  int

	// Document payload.
	Extends string

	// Element payload.
	Tag         string
	Classes     []string
	ID          string
	Attributes  []Attr
	SelfClosing bool

	// Text / Expression / Raw / Include / Style / Script / Comment / Slot payload.
	Text string

	// Conditional payload. Children holds the then-branch.
	Condition  string
	ElseIf     []ElseIfBranch
	ElseBranch []*Node
	HasElse    bool

	// ForLoop payload. Children holds the body.
	LoopVar        string
	LoopCollection string

	// Hook payload.
	HookName string
	HookData string

	Children []*Node
}

// ElseIfBranch is one "else if" arm of a conditional.
type ElseIfBranch struct {
	Condition string
	Body      []*Node
}

// voidElements are self-closing HTML elements that never accept children.
var voidElements = map[string]bool{
	"meta": true, "link": true, "input": true, "br": true, "hr": true,
	"img": true, "source": true, "area": true, "base": true, "col": true,
	"embed": true, "track": true, "wbr": true,
}

// IsVoidElement reports whether tag is a self-closing element.
func IsVoidElement(tag string) bool { return voidElements[tag] }

type parser struct {
	tokens []Token
	pos    int
	file   string
}

// Parse builds the AST from a token stream. Tree shape follows indentation:
// a token at depth k becomes the last child of the most recent token at
// depth k-1.
func Parse(tokens []Token, file string) (*Node, error) {
	p := &parser{tokens: tokens, file: file}

	doc := &Node{Kind: NodeDocument, Line: 1, Col: 1}

	// extends is only legal as the first non-comment construct.
	for p.pos < len(p.tokens) && p.tokens[p.pos].Kind == TokenComment {
		doc.Children = append(doc.Children, commentNode(&p.tokens[p.pos]))
		p.pos++
	}
	if p.pos < len(p.tokens) && p.tokens[p.pos].Kind == TokenExtends {
		tok := &p.tokens[p.pos]
		if tok.Indent != 0 {
			return nil, errAt(p.file, tok.Line, tok.Col, "'extends' must not be indented")
		}
		doc.Extends = tok.Text
		p.pos++
	}

	children, err := p.parseChildren(0)
	if err != nil {
		return nil, err
	}
	doc.Children = append(doc.Children, children...)

	if p.pos < len(p.tokens) {
		tok := &p.tokens[p.pos]
		return nil, errAt(p.file, tok.Line, tok.Col, "unexpected %s outside of any open block", tokenLabel(tok))
	}

	return doc, nil
}

// parseChildren parses a run of sibling nodes at exactly expectedIndent.
// It stops at a shallower token or at a control-flow boundary (end / else /
// else if) and errors on a token deeper than the open ancestor allows.
func (p *parser) parseChildren(expectedIndent int) ([]*Node, error) {
	var children []*Node

	for p.pos < len(p.tokens) {
		tok := &p.tokens[p.pos]

		if tok.Indent < expectedIndent {
			break
		}
		if tok.Indent > expectedIndent {
			return nil, errAt(p.file, tok.Line, tok.Col,
				"indentation depth %d has no open parent at depth %d", tok.Indent, tok.Indent-1)
		}

		switch tok.Kind {
		case TokenEnd, TokenElse, TokenElseIf:
			// Block boundaries are consumed by the enclosing construct.
			return children, nil

		case TokenComment:
			children = append(children, commentNode(tok))
			p.pos++

		case TokenText:
			children = append(children, &Node{Kind: NodeText, Text: tok.Text, Line: tok.Line, Col: tok.Col})
			p.pos++

		case TokenExpression:
			children = append(children, &Node{Kind: NodeExpression, Text: tok.Text, Line: tok.Line, Col: tok.Col})
			p.pos++

		case TokenRaw:
			children = append(children, &Node{Kind: NodeRaw, Text: tok.Text, Line: tok.Line, Col: tok.Col})
			p.pos++

		case TokenInclude:
			children = append(children, &Node{Kind: NodeInclude, Text: tok.Text, Line: tok.Line, Col: tok.Col})
			p.pos++

		case TokenHook:
			children = append(children, &Node{Kind: NodeHook, HookName: tok.HookName, HookData: tok.HookData, Line: tok.Line, Col: tok.Col})
			p.pos++

		case TokenIf:
			node, err := p.parseConditional()
			if err != nil {
				return nil, err
			}
			children = append(children, node)

		case TokenFor:
			node, err := p.parseForLoop()
			if err != nil {
				return nil, err
			}
			children = append(children, node)

		case TokenSlot:
			node := &Node{Kind: NodeSlot, Text: tok.Text, Line: tok.Line, Col: tok.Col}
			p.pos++
			body, err := p.parseIndented(tok.Indent)
			if err != nil {
				return nil, err
			}
			node.Children = body
			children = append(children, node)

		case TokenElement:
			node, err := p.parseElement()
			if err != nil {
				return nil, err
			}
			children = append(children, node)

		case TokenStyleBlock:
			p.pos++
			children = append(children, &Node{Kind: NodeStyle, Text: p.collectRawContent(), Line: tok.Line, Col: tok.Col})

		case TokenScriptBlock:
			p.pos++
			children = append(children, &Node{Kind: NodeScript, Text: p.collectRawContent(), Line: tok.Line, Col: tok.Col})

		case TokenExtends:
			return nil, errAt(p.file, tok.Line, tok.Col,
				"'extends' is only legal as the first construct in a file")

		case TokenRawContent:
			// Only reachable on malformed streams; native markers consume these.
			p.pos++

		default:
			return nil, errAt(p.file, tok.Line, tok.Col, "unexpected token")
		}
	}

	return children, nil
}

func (p *parser) parseElement() (*Node, error) {
	tok := &p.tokens[p.pos]
	node := &Node{
		Kind:        NodeElement,
		Tag:         tok.Tag,
		Classes:     tok.Classes,
		ID:          tok.ID,
		Attributes:  tok.Attributes,
		SelfClosing: IsVoidElement(tok.Tag),
		Line:        tok.Line,
		Col:         tok.Col,
	}
	p.pos++

	// Inline text may itself embed {{ expr }} spans.
	if tok.InlineText != "" {
		node.Children = append(node.Children, splitInlineText(tok.InlineText, tok.Line, tok.Col)...)
	}

	if node.SelfClosing {
		if p.pos < len(p.tokens) && p.tokens[p.pos].Indent > tok.Indent {
			child := &p.tokens[p.pos]
			return nil, errAt(p.file, child.Line, child.Col,
				"void element <%s> cannot have children", tok.Tag)
		}
		return node, nil
	}

	body, err := p.parseIndented(tok.Indent)
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, body...)
	return node, nil
}

func (p *parser) parseConditional() (*Node, error) {
	tok := &p.tokens[p.pos]
	node := &Node{Kind: NodeConditional, Condition: tok.Text, Line: tok.Line, Col: tok.Col}
	blockIndent := tok.Indent
	p.pos++

	body, err := p.parseIndented(blockIndent)
	if err != nil {
		return nil, err
	}
	node.Children = body

	foundEnd := false
boundaries:
	for p.pos < len(p.tokens) && p.tokens[p.pos].Indent == blockIndent {
		boundary := &p.tokens[p.pos]
		switch boundary.Kind {
		case TokenElseIf:
			if node.HasElse {
				return nil, errAt(p.file, boundary.Line, boundary.Col, "'else if' after 'else'")
			}
			p.pos++
			branch, err := p.parseIndented(blockIndent)
			if err != nil {
				return nil, err
			}
			node.ElseIf = append(node.ElseIf, ElseIfBranch{Condition: boundary.Text, Body: branch})
		case TokenElse:
			if node.HasElse {
				return nil, errAt(p.file, boundary.Line, boundary.Col, "duplicate 'else' branch")
			}
			p.pos++
			branch, err := p.parseIndented(blockIndent)
			if err != nil {
				return nil, err
			}
			node.HasElse = true
			node.ElseBranch = branch
		case TokenEnd:
			p.pos++
			foundEnd = true
			break boundaries
		default:
			break boundaries
		}
	}

	if !foundEnd {
		return nil, errAt(p.file, tok.Line, tok.Col, "'if' block is missing its matching 'end'")
	}
	return node, nil
}

func (p *parser) parseForLoop() (*Node, error) {
	tok := &p.tokens[p.pos]
	node := &Node{
		Kind:           NodeForLoop,
		LoopVar:        tok.LoopVar,
		LoopCollection: tok.LoopCollection,
		Line:           tok.Line,
		Col:            tok.Col,
	}
	blockIndent := tok.Indent
	p.pos++

	body, err := p.parseIndented(blockIndent)
	if err != nil {
		return nil, err
	}
	node.Children = body

	if p.pos < len(p.tokens) && p.tokens[p.pos].Indent == blockIndent && p.tokens[p.pos].Kind == TokenEnd {
		p.pos++
		return node, nil
	}
	return nil, errAt(p.file, tok.Line, tok.Col, "'for' block is missing its matching 'end'")
}

// parseIndented parses the children nested one level deeper than
// parentIndent. An immediately shallower or equal token means no children.
func (p *parser) parseIndented(parentIndent int) ([]*Node, error) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].Indent <= parentIndent {
		return nil, nil
	}
	tok := &p.tokens[p.pos]
	if tok.Indent > parentIndent+1 {
		return nil, errAt(p.file, tok.Line, tok.Col,
			"indentation depth %d has no open parent at depth %d", tok.Indent, tok.Indent-1)
	}
	return p.parseChildren(parentIndent + 1)
}

// collectRawContent joins consecutive RawContent tokens into one blob.
func (p *parser) collectRawContent() string {
	var lines []string
	for p.pos < len(p.tokens) && p.tokens[p.pos].Kind == TokenRawContent {
		lines = append(lines, p.tokens[p.pos].Text)
		p.pos++
	}
	// Trailing blank lines belong to the surrounding template, not the block.
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func commentNode(tok *Token) *Node {
	return &Node{Kind: NodeComment, Text: tok.Text, Line: tok.Line, Col: tok.Col}
}

// splitInlineText splits "Hello {{ name }}!" into text and expression nodes.
func splitInlineText(text string, line, col int) []*Node {
	var nodes []*Node
	remaining := text
	for {
		start := strings.Index(remaining, "{{")
		if start < 0 {
			break
		}
		if start > 0 {
			nodes = append(nodes, &Node{Kind: NodeText, Text: remaining[:start], Line: line, Col: col})
		}
		remaining = remaining[start+2:]
		end := strings.Index(remaining, "}}")
		if end < 0 {
			// No closing braces: keep the rest verbatim.
			nodes = append(nodes, &Node{Kind: NodeText, Text: "{{" + remaining, Line: line, Col: col})
			return nodes
		}
		expr := strings.TrimSpace(remaining[:end])
		nodes = append(nodes, &Node{Kind: NodeExpression, Text: expr, Line: line, Col: col})
		remaining = remaining[end+2:]
	}
	if remaining != "" {
		nodes = append(nodes, &Node{Kind: NodeText, Text: remaining, Line: line, Col: col})
	}
	return nodes
}

func tokenLabel(tok *Token) string {
	switch tok.Kind {
	case TokenEnd:
		return "'end'"
	case TokenElse:
		return "'else'"
	case TokenElseIf:
		return "'else if'"
	default:
		return fmt.Sprintf("token at depth %d", tok.Indent)
	}
}
