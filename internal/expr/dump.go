package expr

import (
	"fmt"
	"io"
	"reflect"
	"strings"
)

// Dump writes an indented rendering of e.
func Dump(w io.Writer, e *Expr) error {
	p := &printer{w: w}
	p.expr(e, 0)
	return p.err
}

// String renders e with Dump.
func String(e *Expr) string {
	var sb strings.Builder
	_ = Dump(&sb, e)
	return sb.String()
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(indent int, format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", indent), fmt.Sprintf(format, args...))
}

func typeName(t reflect.Type) string {
	if IsVoid(t) {
		return "void"
	}
	return t.String()
}

func vars(vs []*Variable) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String() + " " + typeName(v.Type)
	}
	return strings.Join(parts, ", ")
}

func (p *printer) expr(e *Expr, indent int) {
	if e == nil {
		p.line(indent, "<nil>")
		return
	}
	switch d := e.Data.(type) {
	case ConstantData:
		p.line(indent, "const %#v : %s", d.Value, typeName(e.Type))
	case DefaultData:
		p.line(indent, "default(%s)", typeName(e.Type))
	case VariableData:
		p.line(indent, "%s", d.Var)
	case BlockData:
		p.line(indent, "block : %s [%s] {", typeName(e.Type), vars(d.Vars))
		for _, x := range d.Exprs {
			p.expr(x, indent+1)
		}
		p.line(indent, "}")
	case AssignData:
		if d.Target.Kind == ExprVariable {
			p.line(indent, "%s %s", d.Target.Data.(VariableData).Var, d.Op)
		} else {
			p.line(indent, "assign %s", d.Op)
			p.expr(d.Target, indent+1)
		}
		if d.Value != nil {
			p.expr(d.Value, indent+1)
		}
	case BinaryData:
		p.line(indent, "%s : %s", d.Op, typeName(e.Type))
		p.expr(d.Left, indent+1)
		p.expr(d.Right, indent+1)
	case UnaryData:
		if d.Op == OpConvert {
			p.line(indent, "convert -> %s", typeName(e.Type))
		} else {
			p.line(indent, "%s", d.Op)
		}
		p.expr(d.Operand, indent+1)
	case ThrowData:
		if d.Value == nil {
			p.line(indent, "rethrow")
			return
		}
		p.line(indent, "throw")
		p.expr(d.Value, indent+1)
	case TypeIsData:
		p.line(indent, "is %s", typeName(d.Test))
		p.expr(d.Operand, indent+1)
	case ConditionalData:
		p.line(indent, "if : %s", typeName(e.Type))
		p.expr(d.Test, indent+1)
		p.line(indent, "then")
		p.expr(d.IfTrue, indent+1)
		p.line(indent, "else")
		p.expr(d.IfFalse, indent+1)
	case SwitchData:
		p.line(indent, "switch : %s", typeName(e.Type))
		p.expr(d.Value, indent+1)
		for _, c := range d.Cases {
			tests := make([]string, len(c.TestValues))
			for i, t := range c.TestValues {
				tests[i] = strings.TrimSpace(String(t))
			}
			p.line(indent, "case %s:", strings.Join(tests, ", "))
			p.expr(c.Body, indent+1)
		}
		if d.Default != nil {
			p.line(indent, "default:")
			p.expr(d.Default, indent+1)
		}
	case LoopData:
		p.line(indent, "loop break=%s continue=%s", d.Break, d.Continue)
		p.expr(d.Body, indent+1)
	case TryData:
		p.line(indent, "try : %s", typeName(e.Type))
		p.expr(d.Body, indent+1)
		for _, h := range d.Handlers {
			p.line(indent, "catch %s %s", typeName(h.Test), h.Var)
			if h.Filter != nil {
				p.line(indent, "when")
				p.expr(h.Filter, indent+1)
			}
			p.expr(h.Body, indent+1)
		}
		if d.Fault != nil {
			p.line(indent, "fault")
			p.expr(d.Fault, indent+1)
		}
		if d.Finally != nil {
			p.line(indent, "finally")
			p.expr(d.Finally, indent+1)
		}
	case GotoData:
		p.line(indent, "%s %s", d.Kind, d.Target)
		if d.Value != nil {
			p.expr(d.Value, indent+1)
		}
	case LabelData:
		p.line(indent, "%s:", d.Target)
		if d.Default != nil {
			p.expr(d.Default, indent+1)
		}
	case CallData:
		p.line(indent, "call : %s", typeName(e.Type))
		p.expr(d.Fn, indent+1)
		for _, a := range d.Args {
			p.expr(a, indent+1)
		}
	case MethodCallData:
		p.line(indent, ".%s : %s", d.Method, typeName(e.Type))
		p.expr(d.Receiver, indent+1)
		for _, a := range d.Args {
			p.expr(a, indent+1)
		}
	case FieldData:
		p.line(indent, ".%s", d.Name)
		p.expr(d.Object, indent+1)
	case LambdaData:
		p.line(indent, "%s lambda %s(%s) %s", d.Kind, d.Name, vars(d.Params), typeName(e.Type))
		p.expr(d.Body, indent+1)
	case AwaitData:
		if d.Configured {
			p.line(indent, "await(configure=%t) : %s", d.ContinueOnContext, typeName(e.Type))
		} else {
			p.line(indent, "await : %s", typeName(e.Type))
		}
		p.expr(d.Operand, indent+1)
	case YieldData:
		p.line(indent, "yield")
		p.expr(d.Value, indent+1)
	default:
		p.line(indent, "<%s>", e.Kind)
	}
}
