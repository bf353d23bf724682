package chunker

import (
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// Tree-sitter node type strings. These are grammar-defined, not Go
// constants; they're consistent for a given parser version.
const (
	nodeJavaClass       = "class_declaration"
	nodeJavaInterface   = "interface_declaration"
	nodeJavaEnum        = "enum_declaration"
	nodeJavaMethod      = "method_declaration"
	nodeJavaConstructor = "constructor_declaration"

	nodeJSFunction     = "function_declaration"
	nodeJSClass        = "class_declaration"
	nodeJSMethod       = "method_definition"
	nodeJSArrowFn      = "arrow_function"
	nodeJSFunctionExpr = "function_expression"

	nodeTSInterface = "interface_declaration"
	nodeTSTypeAlias = "type_alias_declaration"

	nodeIdentifier   = "identifier"
	nodeName         = "name"
	nodePropertyID   = "property_identifier"
	nodeTypeID       = "type_identifier"
	nodeVariableDecl = "variable_declarator"
)

var classNodeTypes = map[string]bool{
	nodeJavaClass:     true,
	nodeJavaInterface: true,
	nodeJavaEnum:      true,
	nodeJSClass:       true,
	nodeTSInterface:   true,
}

var methodNodeTypesByLanguage = map[string][]string{
	"java":       {nodeJavaMethod, nodeJavaConstructor},
	"javascript": {nodeJSMethod, nodeJSFunction},
	"typescript": {nodeJSMethod, nodeJSFunction},
}

var whitelistByLanguage = map[string][]string{
	"java":       {nodeJavaClass, nodeJavaInterface, nodeJavaEnum, nodeJavaMethod, nodeJavaConstructor},
	"javascript": {nodeJSFunction, nodeJSClass, nodeJSMethod, nodeJSArrowFn, nodeJSFunctionExpr},
	"typescript": {nodeJSFunction, nodeJSClass, nodeTSInterface, nodeTSTypeAlias, nodeJSMethod, nodeJSArrowFn},
}

// classSummaryMaxLines/classSummaryMaxMethods/methodSignatureMaxLength
// bound the synthetic summary chunk created for a class too large to embed
// whole; hierarchicalSplitThreshold decides when that kicks in.
const (
	classSummaryMaxLines       = 50
	classSummaryMaxMethods     = 20
	methodSignatureMaxLength   = 100
	hierarchicalSplitThreshold = 4000
)

// ASTChunker walks a tree-sitter parse tree for the languages this module
// vendors a grammar for. Tree-sitter parsers are not thread-safe, so every
// parser access is serialized by mux.
type ASTChunker struct {
	parsers map[string]*sitter.Parser
	mux     sync.Mutex
}

// NewASTChunker builds parsers for java/javascript/typescript, the grammars
// the teacher vendors.
func NewASTChunker() *ASTChunker {
	ac := &ASTChunker{parsers: make(map[string]*sitter.Parser)}

	javaParser := sitter.NewParser()
	javaParser.SetLanguage(java.GetLanguage())
	ac.parsers["java"] = javaParser

	jsParser := sitter.NewParser()
	jsParser.SetLanguage(javascript.GetLanguage())
	ac.parsers["javascript"] = jsParser

	tsParser := sitter.NewParser()
	tsParser.SetLanguage(typescript.GetLanguage())
	ac.parsers["typescript"] = tsParser

	return ac
}

// CanParseLanguage reports whether a grammar is wired for language.
func (ac *ASTChunker) CanParseLanguage(language string) bool {
	_, ok := ac.parsers[language]
	return ok
}

// Close drops parser references.
func (ac *ASTChunker) Close() {
	ac.mux.Lock()
	defer ac.mux.Unlock()
	ac.parsers = make(map[string]*sitter.Parser)
}

// Chunk walks the parsed tree and emits one models.Chunk per whitelisted
// node, splitting large classes/interfaces hierarchically (summary chunk +
// per-method chunks) per spec.md §4.2 step 1.
func (ac *ASTChunker) Chunk(language, content string) ([]models.Chunk, error) {
	ac.mux.Lock()
	parser, ok := ac.parsers[language]
	if !ok {
		ac.mux.Unlock()
		return nil, fmt.Errorf("no parser for language %q", language)
	}
	tree := parser.Parse(nil, []byte(content))
	ac.mux.Unlock()

	if tree == nil {
		return nil, fmt.Errorf("parse failed for language %q", language)
	}
	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("empty parse tree for language %q", language)
	}

	whitelist := whitelistSet(language)
	var chunks []models.Chunk
	emitted := map[[2]uint32]bool{}

	walkTree(root, whitelist, func(node *sitter.Node, nodeType string) {
		if emitted[[2]uint32{node.StartByte(), node.EndByte()}] {
			return
		}
		if classNodeTypes[nodeType] && int(node.EndByte()-node.StartByte()) > hierarchicalSplitThreshold {
			for _, m := range methodNodes(node, language) {
				emitted[[2]uint32{m.StartByte(), m.EndByte()}] = true
			}
			chunks = append(chunks, ac.hierarchicalChunks(node, content, language, nodeType)...)
			return
		}
		if chunk := nodeChunk(node, content, nodeType); chunk != nil {
			chunks = append(chunks, *chunk)
		}
	})

	if len(chunks) == 0 {
		return nil, nil // caller falls back to the line-based chunker
	}
	return chunks, nil
}

func whitelistSet(language string) map[string]bool {
	types := whitelistByLanguage[language]
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// walkTree recurses the whole tree (even inside a matched node) so nested
// functions/classes still get their own chunk.
func walkTree(node *sitter.Node, whitelist map[string]bool, callback func(*sitter.Node, string)) {
	if node == nil {
		return
	}
	nodeType := node.Type()
	if whitelist[nodeType] {
		callback(node, nodeType)
	}
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		walkTree(node.Child(i), whitelist, callback)
	}
}

// nodeChunk builds a Chunk from a node, or nil if the node's trimmed text
// is empty (spec.md §4.2 step 2).
func nodeChunk(node *sitter.Node, content, nodeType string) *models.Chunk {
	start, end := node.StartByte(), node.EndByte()
	if start >= end || int(end) > len(content) {
		return nil
	}
	text := content[start:end]
	if strings.TrimSpace(text) == "" {
		return nil
	}

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	name := extractNodeName(node, content)

	chunk := &models.Chunk{
		Content: text,
		SourceLocation: models.SourceLocation{
			StartLine: startLine,
			EndLine:   endLine,
		},
		ChunkType: classify(nodeType),
		Metadata:  map[string]interface{}{},
	}
	if classNodeTypes[nodeType] || nodeType == nodeTSTypeAlias {
		chunk.Metadata["class_name"] = name
	} else {
		chunk.Metadata["function_name"] = name
	}
	return chunk
}

func classify(nodeType string) models.ChunkType {
	switch {
	case classNodeTypes[nodeType]:
		if nodeType == nodeJavaInterface || nodeType == nodeTSInterface {
			return models.ChunkTypeInterface
		}
		return models.ChunkTypeClass
	case nodeType == nodeJavaMethod || nodeType == nodeJSMethod || nodeType == nodeJavaConstructor:
		return models.ChunkTypeMethod
	default:
		return models.ChunkTypeFunction
	}
}

// extractNodeName extracts a function/class identifier from a node's children.
func extractNodeName(node *sitter.Node, content string) string {
	if node == nil {
		return ""
	}
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case nodeIdentifier, nodeName, nodePropertyID, nodeTypeID:
			start, end := child.StartByte(), child.EndByte()
			if start < end && int(end) <= len(content) {
				return content[start:end]
			}
		case nodeVariableDecl:
			if name := extractNodeName(child, content); name != "" {
				return name
			}
		}
	}
	return ""
}

func (ac *ASTChunker) hierarchicalChunks(node *sitter.Node, content, language, nodeType string) []models.Chunk {
	className := extractNodeName(node, content)
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	summary := classSummary(node, content, language)
	chunks := []models.Chunk{{
		Content: summary,
		SourceLocation: models.SourceLocation{
			StartLine: startLine,
			EndLine:   endLine,
		},
		ChunkType: classify(nodeType),
		Metadata:  map[string]interface{}{"class_name": className},
	}}

	for _, methodNode := range methodNodes(node, language) {
		if chunk := nodeChunk(methodNode, content, nodeJavaMethod); chunk != nil {
			chunk.ChunkType = models.ChunkTypeMethod
			chunk.Metadata["class_name"] = className
			chunks = append(chunks, *chunk)
		}
	}
	return chunks
}

func classSummary(node *sitter.Node, content, language string) string {
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(content) {
		end = uint32(len(content))
	}
	lines := strings.Split(content[start:end], "\n")

	signatureEnd := len(lines)
	for i, line := range lines {
		if i >= classSummaryMaxLines {
			signatureEnd = i
			break
		}
	}

	var b strings.Builder
	for i := 0; i < signatureEnd && i < len(lines); i++ {
		b.WriteString(lines[i])
		b.WriteString("\n")
	}

	methods := methodNodes(node, language)
	if len(methods) > 0 {
		b.WriteString("\n// Methods:\n")
		for i, m := range methods {
			if i >= classSummaryMaxMethods {
				fmt.Fprintf(&b, "// ... and %d more methods\n", len(methods)-classSummaryMaxMethods)
				break
			}
			mStart, mEnd := m.StartByte(), m.EndByte()
			if int(mEnd) > len(content) {
				continue
			}
			methodLines := strings.SplitN(content[mStart:mEnd], "\n", 2)
			sig := strings.TrimSpace(methodLines[0])
			if len(sig) > methodSignatureMaxLength {
				sig = sig[:methodSignatureMaxLength] + "..."
			}
			fmt.Fprintf(&b, "// - %s\n", sig)
		}
	}
	return b.String()
}

func methodNodes(classNode *sitter.Node, language string) []*sitter.Node {
	types := methodNodeTypesByLanguage[language]
	if len(types) == 0 {
		types = []string{nodeJavaMethod}
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}

	var methods []*sitter.Node
	walkTree(classNode, set, func(n *sitter.Node, _ string) {
		parent := n.Parent()
		if parent == classNode || (parent != nil && parent.Parent() == classNode) {
			methods = append(methods, n)
		}
	})
	return methods
}
