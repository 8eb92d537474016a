package cbtml

import (
	"fmt"
	"strings"
)

// Ext is the on-disk extension of template source files. Inclusion and
// inheritance references in generated output are auto-suffixed with it.
const Ext = ".cbt"

// RefToPath rewrites a template reference to the fully-qualified generated
// path: "aurora:post" becomes "aurora/post.cbt", "post" becomes "post.cbt".
func RefToPath(ref string) string {
	if ns, name, ok := strings.Cut(ref, ":"); ok {
		return ns + "/" + name + Ext
	}
	return ref + Ext
}

// generator lowers an AST into the downstream control-flow template syntax.
type generator struct {
	out      strings.Builder
	blocks   []string
	includes []string
}

// Generate lowers the AST into the target templating syntax and reports the
// declared block names and referenced templates (parents excluded).
func Generate(doc *Node) (output string, blocks, includes []string, err error) {
	g := &generator{}
	if err := g.node(doc); err != nil {
		return "", nil, nil, err
	}
	return g.out.String(), g.blocks, g.includes, nil
}

func (g *generator) node(n *Node) error {
	switch n.Kind {
	case NodeDocument:
		if n.Extends != "" {
			fmt.Fprintf(&g.out, "{%% extends %q %%}\n", RefToPath(n.Extends))
		}
		return g.children(n.Children)

	case NodeElement:
		g.out.WriteByte('<')
		g.out.WriteString(n.Tag)
		if len(n.Classes) > 0 {
			fmt.Fprintf(&g.out, " class=\"%s\"", strings.Join(n.Classes, " "))
		}
		if n.ID != "" {
			fmt.Fprintf(&g.out, " id=\"%s\"", n.ID)
		}
		for _, attr := range n.Attributes {
			if attr.Value.Dynamic {
				fmt.Fprintf(&g.out, " %s=\"{{ %s }}\"", attr.Name, attr.Value.Value)
			} else {
				fmt.Fprintf(&g.out, " %s=\"%s\"", attr.Name, attr.Value.Value)
			}
		}
		if n.SelfClosing {
			g.out.WriteString(" />")
			return nil
		}
		g.out.WriteByte('>')
		if err := g.children(n.Children); err != nil {
			return err
		}
		fmt.Fprintf(&g.out, "</%s>", n.Tag)
		return nil

	case NodeText:
		g.out.WriteString(n.Text)
		return nil

	case NodeExpression:
		fmt.Fprintf(&g.out, "{{ %s }}", n.Text)
		return nil

	case NodeRaw:
		fmt.Fprintf(&g.out, "{{ %s|safe }}", n.Text)
		return nil

	case NodeConditional:
		fmt.Fprintf(&g.out, "{%% if %s %%}", n.Condition)
		if err := g.children(n.Children); err != nil {
			return err
		}
		for _, branch := range n.ElseIf {
			fmt.Fprintf(&g.out, "{%% elif %s %%}", branch.Condition)
			if err := g.children(branch.Body); err != nil {
				return err
			}
		}
		if n.HasElse {
			g.out.WriteString("{% else %}")
			if err := g.children(n.ElseBranch); err != nil {
				return err
			}
		}
		g.out.WriteString("{% endif %}")
		return nil

	case NodeForLoop:
		fmt.Fprintf(&g.out, "{%% for %s in %s %%}", n.LoopVar, n.LoopCollection)
		if err := g.children(n.Children); err != nil {
			return err
		}
		g.out.WriteString("{% endfor %}")
		return nil

	case NodeSlot:
		g.blocks = append(g.blocks, n.Text)
		fmt.Fprintf(&g.out, "{%% block %s %%}", n.Text)
		if err := g.children(n.Children); err != nil {
			return err
		}
		g.out.WriteString("{% endblock %}")
		return nil

	case NodeInclude:
		g.includes = append(g.includes, n.Text)
		fmt.Fprintf(&g.out, "{%% include %q %%}", RefToPath(n.Text))
		return nil

	case NodeStyle:
		g.out.WriteString("<style>")
		g.out.WriteString(n.Text)
		g.out.WriteString("</style>")
		return nil

	case NodeScript:
		g.out.WriteString("<script>")
		g.out.WriteString(n.Text)
		g.out.WriteString("</script>")
		return nil

	case NodeComment:
		// Comments are dropped from the compiled output.
		return nil

	case NodeHook:
		if n.HookData == "" {
			fmt.Fprintf(&g.out, "{{ hook(%q)|safe }}", n.HookName)
		} else {
			fmt.Fprintf(&g.out, "{{ hook(%q, %s)|safe }}", n.HookName, n.HookData)
		}
		return nil

	default:
		return errAt("", n.Line, n.Col, "codegen: unknown node kind %d", n.Kind)
	}
}

func (g *generator) children(nodes []*Node) error {
	for _, child := range nodes {
		if err := g.node(child); err != nil {
			return err
		}
	}
	return nil
}
