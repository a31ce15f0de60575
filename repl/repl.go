package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/ergochat/readline"

	joy "github.com/lessisbetter/json-joy-rs-sub002"
	"github.com/lessisbetter/json-joy-rs-sub002/store"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

// REPL per se.
type REPL struct {
	Store *store.Store
	Sid   uint64
	Log   utils.Logger
	Out   io.Writer

	docID string
	doc   *joy.Document
	rl    *readline.Instance
	srv   *http.Server
}

var ErrBadPath = errors.New("bad path")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("create"),
	readline.PcItem("open"),
	readline.PcItem("close"),
	readline.PcItem("compact"),
	readline.PcItem("listen"),

	readline.PcItem("new"),
	readline.PcItem("load"),
	readline.PcItem("view"),
	readline.PcItem("set"),
	readline.PcItem("remove"),
	readline.PcItem("diff"),
	readline.PcItem("apply"),
	readline.PcItem("fork"),
	readline.PcItem("hex"),
	readline.PcItem("dump"),
	readline.PcItem("save"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".joy_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.srv != nil {
		_ = repl.srv.Close()
		repl.srv = nil
	}
	if repl.Store != nil {
		_ = repl.Store.Close()
		repl.Store = nil
	}
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

// split cuts the command word off the line.
func split(line string) (cmd, rest string) {
	line = strings.TrimSpace(line)
	ws := strings.IndexAny(line, " \t\r\n")
	if ws < 0 {
		return line, ""
	}
	return line[:ws], strings.TrimSpace(line[ws:])
}

// Execute runs one command line.
func (repl *REPL) Execute(line string) (err error) {
	cmd, arg := split(line)
	switch cmd {
	case "":
	// store open/close
	case "create":
		err = repl.CommandCreate(arg)
	case "open":
		err = repl.CommandOpen(arg)
	case "close":
		err = repl.CommandClose(arg)
	case "compact":
		err = repl.CommandCompact(arg)
	case "listen":
		err = repl.CommandListen(arg)
	case "exit", "quit":
		if repl.Store != nil {
			err = repl.CommandClose(arg)
		}
		if err == nil {
			err = io.EOF
		}
	// ----- documents -----
	case "new":
		err = repl.CommandNew(arg)
	case "load":
		err = repl.CommandLoad(arg)
	case "view", "cat":
		err = repl.CommandView(arg)
	case "set":
		err = repl.CommandSet(arg)
	case "remove", "rm":
		err = repl.CommandRemove(arg)
	case "diff":
		err = repl.CommandDiff(arg)
	case "apply":
		err = repl.CommandApply(arg)
	case "fork":
		err = repl.CommandFork(arg)
	case "hex":
		err = repl.CommandHex(arg)
	case "save":
		err = repl.CommandSave(arg)
	// ----- debug -----
	case "dump":
		err = repl.CommandDump(arg)
	case "help":
		err = repl.CommandHelp(arg)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
	}
	return
}

func (repl *REPL) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(repl.Out, format, args...)
}

func (repl *REPL) REPL() error {
	line, err := repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return repl.Execute(line)
}

func main() {
	repl := REPL{
		Sid: joy.GenerateSessionID(),
		Log: utils.NewDefaultLogger(slog.LevelWarn),
		Out: os.Stdout,
	}
	joy.SetLogger(repl.Log)

	err := repl.Open()
	if err == nil && len(os.Args) > 1 {
		err = repl.CommandOpen(os.Args[1])
	}

	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		}
		err = repl.REPL()
	}
	_ = repl.Close()
}
