package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/RMahshie/labfit/pkg/models"
)

// Print writes the parameters of o one per line, followed by its notes.
func Print(w io.Writer, o *Outcome) error {
	var b strings.Builder
	if o.Title != "" {
		fmt.Fprintf(&b, "== %s ==\n", o.Title)
	}
	for _, p := range o.Parameters {
		b.WriteString(FormatParameter(p))
		b.WriteByte('\n')
	}
	for _, n := range o.Notes {
		fmt.Fprintf(&b, "note: %s\n", n)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatParameter renders "[group] Name: (value ± err) unit".
func FormatParameter(p models.Parameter) string {
	verb := p.Verb
	if verb == "" {
		verb = "%.4g"
	}
	var b strings.Builder
	if p.Group != "" {
		fmt.Fprintf(&b, "[%s] ", p.Group)
	}
	b.WriteString(p.Name)
	b.WriteString(": ")
	if p.HasError() {
		fmt.Fprintf(&b, "("+verb+" ± "+verb+")", p.Value, p.StdErr)
	} else {
		fmt.Fprintf(&b, verb, p.Value)
	}
	if p.Unit != "" {
		b.WriteString(" ")
		b.WriteString(p.Unit)
	}
	return b.String()
}
