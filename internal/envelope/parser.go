package envelope

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/deathguppie/kathoros/internal/core"
)

// MaxParseInput caps how much raw output the parser will scan (512KB).
// Oversized chunks are passed through as plain text.
const MaxParseInput = 512 * 1024

// maxBraceRepair bounds how many closing braces the truncation-repair
// step may append when a streamed envelope was cut off mid-object.
const maxBraceRepair = 16

var (
	// Locates loose {"tool": "...", ...} candidates. Only used to find a
	// starting point — actual extraction is a balanced-brace walk so
	// nested objects inside args survive.
	reToolKey = regexp.MustCompile(`"tool"\s*:\s*"([^"]+)"`)

	// <tool:name>content</tool:name>
	reTaggedBlock = regexp.MustCompile(`(?s)<tool:([a-zA-Z0-9_\-]+)>(.*?)</tool:([a-zA-Z0-9_\-]+)>`)

	// ```name\ncontent```
	reFencedBlock = regexp.MustCompile("(?s)```([a-zA-Z0-9_\\-]+)\\n(.*?)```")
)

// codeLangBlocklist holds fence tags that are programming languages or
// data formats, not tool names. Prevents example snippets from being
// treated as tool calls.
var codeLangBlocklist = map[string]struct{}{
	"python": {}, "py": {}, "javascript": {}, "js": {}, "typescript": {},
	"ts": {}, "java": {}, "c": {}, "cpp": {}, "csharp": {}, "cs": {},
	"go": {}, "rust": {}, "ruby": {}, "php": {}, "swift": {}, "kotlin": {},
	"scala": {}, "r": {}, "sql": {}, "bash": {}, "sh": {}, "zsh": {},
	"shell": {}, "powershell": {}, "html": {}, "css": {}, "xml": {},
	"yaml": {}, "yml": {}, "toml": {}, "json": {}, "markdown": {}, "md": {},
	"text": {}, "txt": {}, "plaintext": {}, "latex": {}, "tex": {},
	"lua": {}, "perl": {}, "haskell": {}, "elixir": {}, "erlang": {},
	"clojure": {}, "lisp": {}, "scheme": {}, "ocaml": {}, "fsharp": {},
	"dart": {}, "zig": {}, "nim": {}, "julia": {}, "matlab": {},
	"sage": {}, "diff": {}, "dockerfile": {}, "makefile": {}, "cmake": {},
	"ini": {}, "cfg": {}, "conf": {}, "csv": {}, "log": {},
}

// ParseResult is returned for every chunk of agent output, match or not.
type ParseResult struct {
	// Request is nil when no tool call was detected.
	Request *core.ToolRequest

	// DisplayText is the agent output with the tool block stripped,
	// ready for display. Equals the input when nothing was detected.
	DisplayText string

	// DetectedVia names the strategy that matched, or "none".
	DetectedVia string

	// RawBlock is the exact substring parsed as the tool call. Used for
	// display only — never persisted.
	RawBlock string
}

// Parser is stateless; one instance is safe for concurrent use.
// All session context is passed per call, and agent identity on any
// produced request comes from that context, never from the parsed text.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser { return &Parser{} }

// Parse scans one chunk of agent output for a tool request. Extraction
// strategies run in strict priority order; the first success wins.
// Parse never executes anything and never fails — undetectable input is
// plain conversational output.
func (p *Parser) Parse(raw string, sess core.SessionContext) ParseResult {
	if strings.TrimSpace(raw) == "" {
		return ParseResult{DisplayText: raw, DetectedVia: "none"}
	}
	if len(raw) > MaxParseInput {
		return ParseResult{DisplayText: raw, DetectedVia: "none"}
	}

	for _, try := range []func(string, core.SessionContext) *ParseResult{
		p.tryStrictEnvelope,
		p.tryLooseStruct,
		p.tryTaggedBlock,
		p.tryFencedBlock,
	} {
		if result := try(raw, sess); result != nil {
			return *result
		}
	}

	return ParseResult{DisplayText: raw, DetectedVia: "none"}
}

// tryStrictEnvelope handles priority 1: the strict envelope, either as
// the whole output or embedded anywhere in it, with brace-balance
// repair for truncated streamed output.
func (p *Parser) tryStrictEnvelope(raw string, sess core.SessionContext) *ParseResult {
	payload := Decode(raw)
	rawBlock := strings.TrimSpace(raw)

	if payload == nil {
		payload, rawBlock = extractEmbeddedEnvelope(raw)
		if payload == nil {
			return nil
		}
	}

	req := newRequest(sess, payload.Tool, payload.Args, payload.Nonce, true, "json_envelope")
	if payload.RunID != "" {
		req.RunID = payload.RunID
	}
	return &ParseResult{
		Request:     req,
		DisplayText: stripBlock(raw, rawBlock),
		DetectedVia: "json_envelope",
		RawBlock:    rawBlock,
	}
}

// tryLooseStruct handles priority 2: a bare {"tool": ..., "args": ...}
// object located by a balanced-brace scan.
func (p *Parser) tryLooseStruct(raw string, sess core.SessionContext) *ParseResult {
	match := reToolKey.FindStringIndex(raw)
	if match == nil {
		return nil
	}

	braceStart := strings.LastIndex(raw[:match[0]], "{")
	if braceStart == -1 {
		return nil
	}
	rawBlock, ok := extractBalanced(raw, braceStart)
	if !ok {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(rawBlock), &parsed); err != nil {
		return nil
	}
	tool, _ := parsed["tool"].(string)
	args, argsOK := parsed["args"].(map[string]any)
	if tool == "" || !argsOK {
		return nil
	}
	nonce, _ := parsed["nonce"].(string)

	req := newRequest(sess, tool, args, nonce, false, "json_struct")
	return &ParseResult{
		Request:     req,
		DisplayText: stripBlock(raw, rawBlock),
		DetectedVia: "json_struct",
		RawBlock:    rawBlock,
	}
}

// tryTaggedBlock handles priority 3: <tool:name>content</tool:name>.
func (p *Parser) tryTaggedBlock(raw string, sess core.SessionContext) *ParseResult {
	match := reTaggedBlock.FindStringSubmatch(raw)
	if match == nil || match[1] != match[3] {
		return nil
	}

	args := argsFromContent(strings.TrimSpace(match[2]))
	req := newRequest(sess, match[1], args, "", false, "xml_tag")
	return &ParseResult{
		Request:     req,
		DisplayText: stripBlock(raw, match[0]),
		DetectedVia: "xml_tag",
		RawBlock:    match[0],
	}
}

// tryFencedBlock handles priority 4: a fenced code block whose language
// tag is not a known programming language.
func (p *Parser) tryFencedBlock(raw string, sess core.SessionContext) *ParseResult {
	for _, match := range reFencedBlock.FindAllStringSubmatch(raw, -1) {
		tag := match[1]
		if _, blocked := codeLangBlocklist[strings.ToLower(tag)]; blocked {
			continue
		}
		args := argsFromContent(strings.TrimSpace(match[2]))
		req := newRequest(sess, tag, args, "", false, "markdown_block")
		return &ParseResult{
			Request:     req,
			DisplayText: stripBlock(raw, match[0]),
			DetectedVia: "markdown_block",
			RawBlock:    match[0],
		}
	}
	return nil
}

// newRequest builds a ToolRequest with identity taken from the session
// context only.
func newRequest(sess core.SessionContext, tool string, args map[string]any, nonce string, enveloped bool, via string) *core.ToolRequest {
	return &core.ToolRequest{
		RequestID:   uuid.New().String(),
		AgentID:     sess.AgentID,
		AgentName:   sess.AgentName,
		Trust:       sess.Trust,
		Access:      sess.Access,
		ToolName:    tool,
		Args:        args,
		Nonce:       nonce,
		Enveloped:   enveloped,
		DetectedVia: via,
	}
}

// extractEmbeddedEnvelope locates a strict envelope anywhere in text,
// including inside fenced blocks, via a balanced-brace walk. When the
// closing braces were truncated by streaming, it appends the minimum
// number needed to balance and re-parses.
func extractEmbeddedEnvelope(text string) (*Payload, string) {
	keyPos := strings.Index(text, `"`+Key+`"`)
	if keyPos == -1 {
		return nil, ""
	}
	braceStart := strings.LastIndex(text[:keyPos], "{")
	if braceStart == -1 {
		return nil, ""
	}

	depth := 0
	inString := false
	escape := false
	lastBrace := -1
	for i := braceStart; i < len(text); i++ {
		ch := text[i]
		if escape {
			escape = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			lastBrace = i
			if depth == 0 {
				block := text[braceStart : i+1]
				if payload := Decode(block); payload != nil {
					return payload, block
				}
				return nil, ""
			}
		}
	}

	// Unbalanced: repair by appending the missing closers after the last
	// brace seen, then re-parse.
	if depth > 0 && depth <= maxBraceRepair && lastBrace > braceStart {
		repaired := text[braceStart:lastBrace+1] + strings.Repeat("}", depth)
		if payload := Decode(repaired); payload != nil {
			return payload, text[braceStart : lastBrace+1]
		}
	}
	// No closing brace at all — repair from the end of the text.
	if depth > 0 && depth <= maxBraceRepair && lastBrace == -1 {
		repaired := strings.TrimSpace(text[braceStart:]) + strings.Repeat("}", depth)
		if payload := Decode(repaired); payload != nil {
			return payload, strings.TrimSpace(text[braceStart:])
		}
	}
	return nil, ""
}

// extractBalanced returns the balanced {...} object starting at start,
// tracking strings and escapes so braces inside values do not miscount.
func extractBalanced(text string, start int) (string, bool) {
	if start >= len(text) || text[start] != '{' {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escape {
			escape = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{' || ch == '[':
			depth++
		case ch == '}' || ch == ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// argsFromContent parses content as a JSON object, or wraps it as
// {"input": content} when it is free text.
func argsFromContent(content string) map[string]any {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err == nil && parsed != nil {
		return parsed
	}
	return map[string]any{"input": content}
}

func stripBlock(raw, block string) string {
	return strings.TrimSpace(strings.Replace(raw, block, "", 1))
}
