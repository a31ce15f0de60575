package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	joy "github.com/lessisbetter/json-joy-rs-sub002"
	"github.com/lessisbetter/json-joy-rs-sub002/model"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
)

var ErrUnknownBlob = errors.New("neither a model, a patch nor a patch log")

func ShowModel(w io.Writer, m *model.Model) {
	switch {
	case m.Opaque():
		_, _ = fmt.Fprintf(w, "opaque model\n")
		return
	case m.Server():
		_, _ = fmt.Fprintf(w, "server model, time %d\n", m.Time())
	default:
		_, _ = fmt.Fprintf(w, "model, session %d\n", m.Sid())
		for i, ts := range m.Table() {
			_, _ = fmt.Fprintf(w, "  clock[%d]\t%s\n", i, ts.String())
		}
	}
	_, _ = fmt.Fprintf(w, "nodes\t%d\n", m.Size())
	_, _ = fmt.Fprintf(w, "view\t%s\n", protocol.FormatJSON(m.View()))
}

func ShowPatch(w io.Writer, p *patch.Patch) {
	_, _ = fmt.Fprintf(w, "patch %s, %d ops, span %d\n", p.ID.String(), len(p.Ops), p.Span())
	for i := range p.Ops {
		_, _ = fmt.Fprintf(w, "  %s\n", p.Ops[i].String())
	}
}

// Inspect prints a hex blob as whatever it decodes to: a patch log,
// a model, or a patch, tried in that order.
func Inspect(w io.Writer, hex string) error {
	data, err := joy.HexDecode(hex)
	if err != nil {
		return err
	}
	if len(data) > 0 && data[0] == patch.LogVersion {
		if patches, err := patch.DeserializeLog(data); err == nil && len(patches) > 0 {
			_, _ = fmt.Fprintf(w, "patch log, %d patches\n", len(patches))
			for _, p := range patches {
				ShowPatch(w, p)
			}
			return nil
		}
	}
	if m, err := model.Decode(data); err == nil {
		ShowModel(w, m)
		return nil
	}
	if p, err := patch.Decode(data); err == nil {
		ShowPatch(w, p)
		return nil
	}
	return ErrUnknownBlob
}

func main() {
	if len(os.Args) < 2 {
		_, _ = fmt.Fprintln(os.Stderr, "Usage: joyinspect <hex>... (- reads stdin)")
		os.Exit(-2)
	}
	ex := 0
	for _, arg := range os.Args[1:] {
		if arg == "-" {
			in, err := io.ReadAll(os.Stdin)
			if err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
				os.Exit(-1)
			}
			arg = strings.TrimSpace(string(in))
		}
		if err := Inspect(os.Stdout, arg); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error inspecting %.16s: %s\n", arg, err.Error())
			ex = -1
		}
	}
	os.Exit(ex)
}
