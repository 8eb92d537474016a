// Package cbtml compiles the indentation-structured template language into
// a conventional control-flow templating syntax for the downstream render
// engine. Compilation is deterministic: identical source yields byte-identical
// output.
package cbtml

// Compiled is the result of compiling one template source file.
type Compiled struct {
	// Output is the lowered template text.
	Output string

	// Parent is the declared inheritance reference ("" when the template
	// extends nothing). References keep their source form, e.g. "aurora:post".
	Parent string

	// Blocks are slot names declared by this template, in source order.
	Blocks []string

	// Includes are template references pulled in via the include directive.
	Includes []string
}

// Compile runs the full pipeline: tokenize, parse, generate. The file name
// is used for error positions only.
func Compile(source, file string) (*Compiled, error) {
	tokens, err := Tokenize(source, file)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(tokens, file)
	if err != nil {
		return nil, err
	}

	output, blocks, includes, err := Generate(doc)
	if err != nil {
		return nil, err
	}

	return &Compiled{
		Output:   output,
		Parent:   doc.Extends,
		Blocks:   blocks,
		Includes: includes,
	}, nil
}
