// Command pywat compiles a typed Python subset to WebAssembly text.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/chazu/pywat/compiler"
	"github.com/chazu/pywat/manifest"
	"github.com/chazu/pywat/server"
	"github.com/chazu/pywat/session"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	if err := runCLI(os.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the global flags and the resolved project configuration to
// the subcommands.
type cli struct {
	out      io.Writer
	manifest *manifest.Manifest
}

func runCLI(args []string, out io.Writer) error {
	global := flag.NewFlagSet("pywat", flag.ContinueOnError)
	global.SetOutput(new(flagErrorSink))
	var verbosity countFlag
	global.Var(&verbosity, "v", "increase log verbosity (repeatable)")
	dir := global.String("C", ".", "directory to search for "+manifest.FileName)
	if len(args) < 1 {
		return usageError()
	}
	if err := global.Parse(args[1:]); err != nil {
		return usageError()
	}
	rest := global.Args()
	if len(rest) == 0 {
		return usageError()
	}

	commonlog.Configure(int(verbosity), nil)

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		return err
	}
	if m == nil {
		m = manifest.Default()
	}
	c := &cli{out: out, manifest: m}

	switch rest[0] {
	case "compile":
		return c.compileCommand(rest[1:])
	case "check":
		return c.checkCommand(rest[1:])
	case "run":
		return c.runCommand(rest[1:])
	case "repl":
		return c.replCommand(rest[1:])
	case "serve":
		return c.serveCommand(rest[1:])
	case "lsp":
		return server.NewLSP(m.Compile.MemoryPages).Run()
	case "ast":
		return c.astCommand(rest[1:])
	case "cst":
		return c.cstCommand(rest[1:])
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		return usageError()
	}
}

// sourceArg reads the file named by the single positional argument, or
// the manifest entry when there is none.
func (c *cli) sourceArg(cmd string, args []string) (string, string, error) {
	path := c.manifest.EntryPath()
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return "", "", fmt.Errorf("pywat %s: source file required", cmd)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read source: %w", err)
	}
	return path, string(src), nil
}

func (c *cli) newEnv() *compiler.GlobalEnv {
	env := compiler.NewGlobalEnv()
	env.MemoryPages = c.manifest.Compile.MemoryPages
	return env
}

// renderError adds a caret snippet to compile errors.
func renderError(path, src string, err error) error {
	if compiler.KindOf(err) != 0 {
		return fmt.Errorf("%s: %s", path, compiler.Render(err, src))
	}
	return err
}

func (c *cli) compileCommand(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(new(flagErrorSink))
	output := fs.String("o", "", "write WAT to this file instead of stdout")
	comments := fs.Bool("comments", c.manifest.Compile.EmitComments, "annotate WAT with source lines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, src, err := c.sourceArg("compile", fs.Args())
	if err != nil {
		return err
	}

	res, err := compiler.CompileWithOptions(src, c.newEnv(), compiler.Options{Comments: *comments})
	if err != nil {
		return renderError(path, src, err)
	}
	if *output == "" {
		_, err = io.WriteString(c.out, res.WAT)
		return err
	}
	return os.WriteFile(*output, []byte(res.WAT), 0o644)
}

func (c *cli) checkCommand(args []string) error {
	path, src, err := c.sourceArg("check", args)
	if err != nil {
		return err
	}
	checked, err := compiler.Check(src, c.newEnv())
	if err != nil {
		return renderError(path, src, err)
	}
	fmt.Fprintf(c.out, "%s: ok, result type %s\n", path, checked.Result)
	return nil
}

func (c *cli) runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(new(flagErrorSink))
	echo := fs.Bool("echo", false, "print the value of a trailing expression")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, src, err := c.sourceArg("run", fs.Args())
	if err != nil {
		return err
	}

	s := session.New(session.Options{
		ID:          path,
		MemoryPages: c.manifest.Compile.MemoryPages,
		Comments:    c.manifest.Compile.EmitComments,
	})
	res, err := s.Eval(src)
	var rerr *session.RuntimeError
	if errors.As(err, &rerr) {
		io.WriteString(c.out, rerr.Output)
		return fmt.Errorf("%s: %w", path, err)
	}
	if err != nil {
		return renderError(path, src, err)
	}
	io.WriteString(c.out, res.Output)
	if *echo && res.Type.Kind != compiler.TypeNone {
		fmt.Fprintln(c.out, res.Display)
	}
	return nil
}

func (c *cli) replCommand(args []string) error {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(new(flagErrorSink))
	historyDB := fs.String("history", c.manifest.HistoryDBPath(), "history database")
	noHistory := fs.Bool("no-history", false, "do not record history")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := session.Options{
		MemoryPages: c.manifest.Compile.MemoryPages,
		Comments:    c.manifest.Compile.EmitComments,
	}
	if !*noHistory {
		store, err := session.OpenStore(*historyDB)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
	}
	return runREPL(session.New(opts), opts)
}

func (c *cli) serveCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(flagErrorSink))
	addr := fs.String("addr", c.manifest.Server.Addr, "listen address")
	historyDB := fs.String("history", "", "history and compile cache database")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := []server.Option{
		server.WithMemoryPages(c.manifest.Compile.MemoryPages),
		server.WithComments(c.manifest.Compile.EmitComments),
	}
	if *historyDB != "" {
		store, err := session.OpenStore(*historyDB)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, server.WithStore(store))
	}
	srv := server.New(opts...)
	defer srv.Stop()
	return srv.ListenAndServe(*addr)
}

func (c *cli) astCommand(args []string) error {
	path, src, err := c.sourceArg("ast", args)
	if err != nil {
		return err
	}
	prog, err := compiler.Parse(src)
	if err != nil {
		return renderError(path, src, err)
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(prog)
}

func (c *cli) cstCommand(args []string) error {
	path, src, err := c.sourceArg("cst", args)
	if err != nil {
		return err
	}
	tree, err := compiler.ParseCST(src)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	_, err = io.WriteString(c.out, tree.Dump())
	return err
}

func usageError() error {
	printUsage()
	return errors.New("invalid command")
}

func printUsage() {
	prog := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s [-v] [-C dir] <command> [flags] [file.py]\n\n", prog)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  compile [-o out.wat] [-comments] file.py   write WAT")
	fmt.Fprintln(os.Stderr, "  check file.py                              print the result type or the error")
	fmt.Fprintln(os.Stderr, "  run [-echo] file.py                        compile and execute")
	fmt.Fprintln(os.Stderr, "  repl [-history db] [-no-history]           interactive session")
	fmt.Fprintln(os.Stderr, "  serve [-addr host:port] [-history db]      Connect HTTP/JSON service")
	fmt.Fprintln(os.Stderr, "  lsp                                        language server on stdio")
	fmt.Fprintln(os.Stderr, "  ast file.py, cst file.py                   debug dumps")
	fmt.Fprintf(os.Stderr, "\nWithout a file, the [source] entry of %s is used.\n", manifest.FileName)
}

type flagErrorSink struct{}

func (flagErrorSink) Write(p []byte) (int, error) {
	return len(p), nil
}

// countFlag counts repeated boolean flags such as -v -v.
type countFlag int

func (f *countFlag) String() string { return strconv.Itoa(int(*f)) }

func (f *countFlag) Set(value string) error {
	if value == "true" {
		*f++
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*f = countFlag(n)
	return nil
}

func (f *countFlag) IsBoolFlag() bool { return true }
