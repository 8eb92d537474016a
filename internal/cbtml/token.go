package cbtml

// TokenKind discriminates lexical units produced by the lexer.
type TokenKind int

const (
	// TokenElement is an HTML element shorthand: tag.class#id [attrs] inline text.
	TokenElement TokenKind = iota
	// TokenText is an explicit text line introduced by "| ".
	TokenText
	// TokenExpression is an escaped output expression: {{ expr }}.
	TokenExpression
	// TokenRaw is an unescaped output expression: raw expr.
	TokenRaw
	// TokenIf opens a conditional: if expr.
	TokenIf
	// TokenElseIf continues a conditional: else if expr.
	TokenElseIf
	// TokenElse is the final conditional branch.
	TokenElse
	// TokenEnd closes an if or for block.
	TokenEnd
	// TokenFor opens a loop: for var in collection.
	TokenFor
	// TokenExtends declares template inheritance: extends parent.
	TokenExtends
	// TokenSlot declares a named block: slot name.
	TokenSlot
	// TokenInclude inlines another template: include path.
	TokenInclude
	// TokenStyleBlock marks the start of a native <style> block.
	TokenStyleBlock
	// TokenScriptBlock marks the start of a native <script> block.
	TokenScriptBlock
	// TokenRawContent is one uninterpreted line inside a native block.
	TokenRawContent
	// TokenComment is a {# ... #} span, dropped at codegen.
	TokenComment
	// TokenHook is a hook("name", data) call site.
	TokenHook
)

// AttrValue is a single element attribute value. Exactly one of Static or
// Dynamic is meaningful, selected by the Dynamic flag.
type AttrValue struct {
	Dynamic bool
	Value   string // literal text, or the expression when Dynamic
}

// Attr is one element attribute.
type Attr struct {
	Name  string
	Value AttrValue
}

// Token is one lexical unit with its indentation depth and source position.
// Indent is measured in whole indentation units, not characters.
type Token struct {
	Kind   TokenKind
	Indent int
	Line   int
	Col    int

	// Text carries the payload for Text, Expression, Raw, If, ElseIf,
	// Extends, Slot, Include, RawContent and Comment tokens.
	Text string

	// Element payload.
	Tag        string
	Classes    []string
	ID         string
	Attributes []Attr
	InlineText string

	// For payload.
	LoopVar        string
	LoopCollection string

	// Hook payload.
	HookName string
	HookData string
}
