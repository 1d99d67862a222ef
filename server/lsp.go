package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/pywat/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "pywat-lsp"

var lspLog = commonlog.GetLogger("pywat.lsp")

// keywords offered by completion, sorted.
var keywords = []string{
	"False", "None", "True", "bool", "class", "def", "elif", "else",
	"if", "int", "is", "not", "object", "pass", "print", "return", "self",
}

// document is an open text document and the last analysis that succeeded.
// Hover and completion keep working from the last good state while the
// text has errors.
type document struct {
	text string
	env  *compiler.GlobalEnv
	prog *compiler.Program
}

// LspServer serves diagnostics, hover, completion and definitions for
// documents edited in an LSP client. Each document is checked as a
// standalone program.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → document

	memoryPages int

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. memoryPages sizes the memory the
// documents are compiled for; 0 uses the default.
func NewLSP(memoryPages int) *LspServer {
	s := &LspServer{
		docs:        make(map[string]*document),
		memoryPages: memoryPages,
		version:     "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("pywat LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	diagnostics := s.update(string(params.TextDocument.URI), params.TextDocument.Text)
	s.publish(ctx, params.TextDocument.URI, diagnostics)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			diagnostics := s.update(string(params.TextDocument.URI), whole.Text)
			s.publish(ctx, params.TextDocument.URI, diagnostics)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.mu.Lock()
	delete(s.docs, string(params.TextDocument.URI))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	s.publish(ctx, params.TextDocument.URI, []protocol.Diagnostic{})
	return nil
}

func (s *LspServer) publish(ctx *glsp.Context, uri protocol.DocumentUri, diagnostics []protocol.Diagnostic) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.document(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}
	return s.complete(doc, params.Position), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.document(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.hover(doc, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	doc, ok := s.document(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	loc := s.definition(doc, params.TextDocument.URI, word)
	if loc == nil {
		return nil, nil
	}
	return loc, nil
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

func (s *LspServer) document(uri string) (document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return document{}, false
	}
	return *doc, true
}

// update stores the new text of a document, compiles it and returns its
// diagnostics.
func (s *LspServer) update(uri, text string) []protocol.Diagnostic {
	env := compiler.NewGlobalEnv()
	if s.memoryPages > 0 {
		env.MemoryPages = s.memoryPages
	}
	res, err := compiler.Compile(text, env)

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		doc = &document{}
		s.docs[uri] = doc
	}
	doc.text = text
	if err != nil {
		lspLog.Debugf("%s: %s", uri, err)
		return []protocol.Diagnostic{diagnostic(err)}
	}
	doc.env = res.Env
	doc.prog = res.Program
	return []protocol.Diagnostic{}
}

// diagnostic converts a compile error. Compile positions are 1-based;
// LSP positions are 0-based.
func diagnostic(err error) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	d := protocol.Diagnostic{
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}

	var cerr *compiler.Error
	if !errors.As(err, &cerr) || cerr.Span.Start.Line == 0 {
		return d
	}
	code := cerr.Kind.String()
	d.Code = &protocol.IntegerOrString{Value: code}
	d.Message = cerr.Msg
	start := lspPosition(cerr.Span.Start)
	end := start
	if cerr.Span.End.Line != 0 {
		end = lspPosition(cerr.Span.End)
	}
	if end == start {
		end.Character++
	}
	d.Range = protocol.Range{Start: start, End: end}
	return d
}

func lspPosition(p compiler.Position) protocol.Position {
	pos := protocol.Position{}
	if p.Line > 0 {
		pos.Line = protocol.UInteger(p.Line - 1)
	}
	if p.Column > 0 {
		pos.Character = protocol.UInteger(p.Column - 1)
	}
	return pos
}

// complete offers members after "receiver." and names otherwise.
func (s *LspServer) complete(doc document, pos protocol.Position) []protocol.CompletionItem {
	prefix, receiver := extractPrefix(doc.text, pos)
	lowerPrefix := strings.ToLower(prefix)
	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if !strings.HasPrefix(strings.ToLower(label), lowerPrefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	env := doc.env
	if receiver != "" {
		if env == nil {
			return nil
		}
		t, ok := env.Types[receiver]
		if !ok || !t.IsClass() {
			return nil
		}
		cls := env.Classes[t.Name]
		if cls == nil {
			return nil
		}
		for _, f := range cls.Fields {
			add(f.Name, protocol.CompletionItemKindField, f.Type.String())
		}
		for _, name := range cls.MethodNames() {
			add(name, protocol.CompletionItemKindMethod, formatSignature(cls.Methods[name]))
		}
		return items
	}

	if prefix == "" {
		return nil
	}
	if env != nil {
		for _, name := range env.ClassNames() {
			add(name, protocol.CompletionItemKindClass, "class")
		}
		for _, name := range env.GlobalNames() {
			add(name, protocol.CompletionItemKindVariable, env.Types[name].String())
		}
		for _, name := range env.FuncNames() {
			add(name, protocol.CompletionItemKindFunction, formatSignature(env.Funcs[name]))
		}
	}
	for _, kw := range keywords {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func (s *LspServer) hover(doc document, word string) *protocol.Hover {
	env := doc.env
	if env == nil {
		return nil
	}

	var b strings.Builder
	switch {
	case env.Classes[word] != nil:
		cls := env.Classes[word]
		fmt.Fprintf(&b, "**class %s**(object)\n\n", cls.Name)
		fmt.Fprintf(&b, "%d words per instance\n", env.ClassSizes[cls.Name])
		for _, f := range cls.Fields {
			fmt.Fprintf(&b, "- `%s: %s`\n", f.Name, f.Type)
		}
		for _, name := range cls.MethodNames() {
			fmt.Fprintf(&b, "- `def %s`\n", formatSignature(cls.Methods[name]))
		}

	case env.Funcs[word] != nil:
		fmt.Fprintf(&b, "```python\ndef %s\n```", formatSignature(env.Funcs[word]))

	default:
		t, ok := env.Types[word]
		if !ok {
			return nil
		}
		fmt.Fprintf(&b, "```python\n%s: %s\n```\n\nglobal at word %d", word, t, env.Offsets[word])
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// definition finds the top-level declaration of word in the document.
func (s *LspServer) definition(doc document, uri protocol.DocumentUri, word string) *protocol.Location {
	if doc.prog == nil {
		return nil
	}
	for _, d := range doc.prog.Decls {
		var name string
		switch d := d.(type) {
		case *compiler.VarDef:
			name = d.Name
		case *compiler.ClassDef:
			name = d.Name
		case *compiler.FuncDef:
			name = d.Name
		}
		if name != word {
			continue
		}
		span := d.Span()
		start := lspPosition(span.Start)
		end := start
		if span.End.Line != 0 {
			end = lspPosition(span.End)
		}
		return &protocol.Location{URI: uri, Range: protocol.Range{Start: start, End: end}}
	}
	return nil
}

// formatSignature renders "name(a:int, b:C) -> bool".
func formatSignature(sig *compiler.Signature) string {
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = fmt.Sprintf("%s:%s", p.Name, p.Type)
	}
	return fmt.Sprintf("%s(%s) -> %s", sig.Name, strings.Join(params, ", "), sig.Return)
}

// --- Text extraction helpers ---

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// extractPrefix returns the identifier fragment before the cursor and, when
// the fragment follows "name.", the receiver name.
func extractPrefix(text string, pos protocol.Position) (prefix, receiver string) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	prefix = line[start:col]

	if start > 0 && line[start-1] == '.' {
		end := start - 1
		rstart := end
		for rstart > 0 && isIdentChar(rune(line[rstart-1])) {
			rstart--
		}
		receiver = line[rstart:end]
	}
	return prefix, receiver
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentChar(rune(line[end])) {
		end++
	}

	if start == end {
		return ""
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
