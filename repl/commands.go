package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble"

	joy "github.com/lessisbetter/json-joy-rs-sub002"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/model"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
	"github.com/lessisbetter/json-joy-rs-sub002/store"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

var (
	HelpCreate  = errors.New("create <dir>")
	HelpOpen    = errors.New("open <dir>")
	HelpCompact = errors.New("compact [doc]")
	HelpNew     = errors.New("new <doc> [json]")
	HelpLoad    = errors.New("load <doc> | load <model hex>")
	HelpSet     = errors.New("set <path> <json>, path like a/b/0")
	HelpRemove  = errors.New("remove <path>")
	HelpDiff    = errors.New("diff <json>")
	HelpApply   = errors.New("apply <patch hex>")
	HelpFork    = errors.New("fork [sid]")
	HelpSave    = errors.New("save <file>")
	HelpListen  = errors.New("listen <addr>")

	ErrNoDoc = errors.New("no document selected, use new or load")
)

var helps = []error{
	HelpCreate, HelpOpen, errors.New("close"), HelpCompact, HelpListen,
	HelpNew, HelpLoad, errors.New("view [path]"), HelpSet, HelpRemove,
	HelpDiff, HelpApply, HelpFork, errors.New("hex"), HelpSave,
	errors.New("dump"), errors.New("exit"),
}

// ParsePath turns a/b/0 into ["a", "b", 0].
func ParsePath(s string) []any {
	s = strings.Trim(s, "/")
	if s == "" {
		return []any{}
	}
	parts := strings.Split(s, "/")
	path := make([]any, len(parts))
	for i, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			path[i] = n
		} else {
			path[i] = p
		}
	}
	return path
}

func parseValue(s string) (any, error) {
	return protocol.ParseJSON([]byte(s))
}

func (repl *REPL) openStore(dir string, opts store.Options) (err error) {
	if repl.Store != nil {
		return errors.New("a store is already open, close it first")
	}
	opts.Logger = repl.Log
	repl.Store, err = store.Open(dir, opts)
	return
}

func (repl *REPL) CommandCreate(arg string) error {
	if arg == "" {
		return HelpCreate
	}
	err := repl.openStore(arg, store.Options{Options: pebble.Options{ErrorIfExists: true}})
	if err == nil {
		repl.printf("store %s created\n", arg)
	}
	return err
}

func (repl *REPL) CommandOpen(arg string) error {
	if arg == "" {
		return HelpOpen
	}
	err := repl.openStore(arg, store.Options{Options: pebble.Options{ErrorIfNotExists: true}})
	if err == nil {
		repl.printf("store %s opened\n", arg)
	}
	return err
}

func (repl *REPL) CommandClose(arg string) error {
	if repl.Store == nil {
		return joy_errors.ErrClosed
	}
	err := repl.Store.Close()
	repl.Store = nil
	if err == nil {
		repl.printf("store closed\n")
	}
	return err
}

func (repl *REPL) CommandCompact(arg string) error {
	if repl.Store == nil {
		return joy_errors.ErrClosed
	}
	doc := arg
	if doc == "" {
		doc = repl.docID
	}
	if doc == "" {
		return HelpCompact
	}
	err := repl.Store.Compact(context.Background(), doc)
	if err == nil {
		repl.printf("%s compacted\n", doc)
	}
	return err
}

// selectDoc makes m the current document; edits are committed to the
// store under docID when one is open.
func (repl *REPL) selectDoc(docID string, m *model.Model) {
	repl.docID = docID
	repl.doc = joy.NewDocument(m)
	repl.doc.OnChange(func(p *patch.Patch) {
		if repl.Store == nil || repl.docID == "" {
			return
		}
		ctx := utils.WithSession(context.Background(), repl.Sid)
		if err := repl.Store.Commit(ctx, repl.docID, p); err != nil {
			repl.Log.Error("commit failed", "doc", repl.docID, "err", err)
		}
	})
}

func (repl *REPL) CommandNew(arg string) error {
	docID, rest := split(arg)
	if docID == "" {
		return HelpNew
	}
	var view any = map[string]any{}
	if rest != "" {
		v, err := parseValue(rest)
		if err != nil {
			return err
		}
		view = v
	}
	var m *model.Model
	var err error
	if repl.Store != nil {
		m, err = repl.Store.Create(context.Background(), docID, view, repl.Sid)
	} else {
		m, err = joy.CreateModel(view, repl.Sid)
		docID = ""
	}
	if err != nil {
		return err
	}
	repl.selectDoc(docID, m)
	repl.printf("%s\n", protocol.FormatJSON(m.View()))
	return nil
}

func (repl *REPL) CommandLoad(arg string) error {
	if arg == "" {
		return HelpLoad
	}
	if repl.Store != nil {
		m, err := repl.Store.Load(context.Background(), arg)
		if err == nil {
			if !m.Server() && m.Sid() != repl.Sid {
				m, err = m.Fork(repl.Sid)
			}
		}
		if err == nil {
			repl.selectDoc(arg, m)
			repl.printf("%s\n", protocol.FormatJSON(m.View()))
			return nil
		}
		if !errors.Is(err, joy_errors.ErrDocumentUnknown) {
			return err
		}
	}
	blob, err := joy.HexDecode(arg)
	if err != nil {
		return err
	}
	m, err := joy.ModelLoad(blob, repl.Sid)
	if err != nil {
		return err
	}
	repl.selectDoc("", m)
	repl.printf("%s\n", protocol.FormatJSON(m.View()))
	return nil
}

func (repl *REPL) CommandView(arg string) error {
	if repl.doc == nil {
		return ErrNoDoc
	}
	v, err := repl.doc.Find(ParsePath(arg)...)
	if err != nil {
		return err
	}
	repl.printf("%s\n", protocol.FormatJSON(v))
	return nil
}

func (repl *REPL) printPatch(p *patch.Patch) error {
	if p == nil {
		repl.printf("no changes\n")
		return nil
	}
	for i := range p.Ops {
		repl.printf("%s\n", p.Ops[i].String())
	}
	return nil
}

func (repl *REPL) CommandSet(arg string) error {
	path, rest := split(arg)
	if path == "" || rest == "" {
		return HelpSet
	}
	if repl.doc == nil {
		return ErrNoDoc
	}
	v, err := parseValue(rest)
	if err != nil {
		return err
	}
	p, err := repl.doc.Set(ParsePath(path), v)
	if err != nil {
		return err
	}
	return repl.printPatch(p)
}

func (repl *REPL) CommandRemove(arg string) error {
	if arg == "" {
		return HelpRemove
	}
	if repl.doc == nil {
		return ErrNoDoc
	}
	p, err := repl.doc.Remove(ParsePath(arg))
	if err != nil {
		return err
	}
	return repl.printPatch(p)
}

// CommandDiff prints the patch a target would need without applying it.
func (repl *REPL) CommandDiff(arg string) error {
	if arg == "" {
		return HelpDiff
	}
	if repl.doc == nil {
		return ErrNoDoc
	}
	target, err := parseValue(arg)
	if err != nil {
		return err
	}
	p, err := joy.DiffModel(repl.doc.Model(), target)
	if err != nil || p == nil {
		_ = repl.printPatch(p)
		return err
	}
	bin, err := patch.Encode(p)
	if err != nil {
		return err
	}
	_ = repl.printPatch(p)
	repl.printf("%s\n", joy.HexEncode(bin))
	return nil
}

func (repl *REPL) CommandApply(arg string) error {
	if arg == "" {
		return HelpApply
	}
	if repl.doc == nil {
		return ErrNoDoc
	}
	bin, err := joy.HexDecode(arg)
	if err != nil {
		return err
	}
	p, err := patch.Decode(bin)
	if err != nil {
		return err
	}
	if err := repl.doc.Apply(p); err != nil {
		return err
	}
	repl.printf("%s\n", protocol.FormatJSON(repl.doc.View()))
	return nil
}

func (repl *REPL) CommandFork(arg string) error {
	if repl.doc == nil {
		return ErrNoDoc
	}
	var sid *uint64
	if arg != "" {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return HelpFork
		}
		sid = &n
	}
	m, err := joy.ForkModel(repl.doc.Model(), sid)
	if err != nil {
		return err
	}
	repl.Sid = m.Sid()
	repl.selectDoc(repl.docID, m)
	repl.printf("session %d\n", m.Sid())
	return nil
}

func (repl *REPL) CommandHex(arg string) error {
	if repl.doc == nil {
		return ErrNoDoc
	}
	bin, err := joy.ModelToBinary(repl.doc.Model())
	if err != nil {
		return err
	}
	repl.printf("%s\n", joy.HexEncode(bin))
	return nil
}

func (repl *REPL) CommandSave(arg string) error {
	if arg == "" {
		return HelpSave
	}
	if repl.doc == nil {
		return ErrNoDoc
	}
	bin, err := joy.ModelToBinary(repl.doc.Model())
	if err != nil {
		return err
	}
	if err := os.WriteFile(arg, bin, 0o644); err != nil {
		return err
	}
	repl.printf("%d bytes written to %s\n", len(bin), arg)
	return nil
}

func (repl *REPL) CommandDump(arg string) error {
	repl.printf("session %d\n", repl.Sid)
	if repl.doc != nil {
		m := repl.doc.Model()
		repl.printf("doc %q nodes %d time %d\n", repl.docID, m.Size(), m.Time())
		for i, ts := range m.Table() {
			repl.printf("  clock[%d] %s\n", i, ts.String())
		}
	}
	if repl.Store == nil {
		return nil
	}
	docs, err := repl.Store.Docs()
	if err != nil {
		return err
	}
	for _, d := range docs {
		n, err := repl.Store.LogSize(d)
		if err != nil {
			return err
		}
		repl.printf("stored %s log %d bytes\n", d, n)
	}
	return nil
}

func (repl *REPL) CommandHelp(arg string) error {
	for _, h := range helps {
		repl.printf("%s\n", h.Error())
	}
	return nil
}

func (repl *REPL) CommandListen(arg string) error {
	if arg == "" {
		return HelpListen
	}
	if repl.Store == nil {
		return joy_errors.ErrClosed
	}
	if repl.srv != nil {
		return fmt.Errorf("already listening on %s", repl.srv.Addr)
	}
	repl.srv = NewServer(arg, repl.Store, repl.Log)
	go func() {
		if err := repl.srv.ListenAndServe(); err != nil {
			repl.Log.Warn("http server stopped", "err", err)
		}
	}()
	repl.printf("listening on %s\n", arg)
	return nil
}
