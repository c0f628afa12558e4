package logicform

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
)

// operator call parsers, keyed by lower-cased operator name
var operatorParsers = map[string]func(p *Parser, args string, outAlias string) (Node, error){
	"retrieval": (*Parser).parseRetrieval,
	"get_spo":   (*Parser).parseRetrieval,
	"math":      (*Parser).parseMath,
	"deduce":    (*Parser).parseDeduce,
	"output":    (*Parser).parseOutput,
	"get":       (*Parser).parseOutput,
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithTypeMap installs a mapping from display type names to standardized
// type names. Declared types not present in the map keep only their
// display form.
func WithTypeMap(typeMap map[string]string) ParserOption {
	return func(p *Parser) {
		p.typeMap = typeMap
	}
}

// Parser turns operator expressions into plan nodes. It keeps a per-plan
// alias symbol table so a later expression referencing an earlier alias
// resolves to the same variable. A Parser covers one plan and is not safe
// for concurrent use.
type Parser struct {
	typeMap  map[string]string
	entities map[string]*SPOEntity
	edges    map[string]*SPORelation
}

// NewParser creates a parser with a fresh alias symbol table.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		entities: make(map[string]*SPOEntity),
		edges:    make(map[string]*SPORelation),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse parses one operator expression into a plan node.
func (p *Parser) Parse(expr string) (Node, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}

	call, outAlias := cutOutputAlias(expr)

	open := indexTop(call, '(')
	if open == -1 || !strings.HasSuffix(call, ")") {
		return nil, fmt.Errorf("malformed operator call: %q", expr)
	}
	name := strings.TrimSpace(call[:open])
	args := call[open+1 : len(call)-1]

	parse, ok := operatorParsers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", name)
	}
	return parse(p, args, outAlias)
}

// ParseAll parses a list of operator expressions. Malformed expressions are
// dropped with a warning instead of failing the plan; the returned slice is
// index-aligned with the surviving expressions.
func (p *Parser) ParseAll(exprs []string) []Node {
	nodes := make([]Node, 0, len(exprs))
	for i, expr := range exprs {
		node, err := p.Parse(expr)
		if err != nil {
			logger.Warn("[LogicForm] Dropping malformed step", "index", i, "error", err)
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func (p *Parser) parseRetrieval(args string, outAlias string) (Node, error) {
	node := &RetrievalNode{}
	var constraints []string

	for _, arg := range splitTop(args, ',') {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		switch {
		case strings.HasPrefix(arg, "s="):
			ent, err := p.resolveEntity(arg[2:])
			if err != nil {
				return nil, fmt.Errorf("bad subject: %w", err)
			}
			node.Subject = ent
		case strings.HasPrefix(arg, "o="):
			ent, err := p.resolveEntity(arg[2:])
			if err != nil {
				return nil, fmt.Errorf("bad object: %w", err)
			}
			node.Object = ent
		case strings.HasPrefix(arg, "p="):
			rel, err := p.resolveRelation(arg[2:])
			if err != nil {
				return nil, fmt.Errorf("bad predicate: %w", err)
			}
			node.Predicate = rel
		default:
			// property constraints may reference s/p/o aliases, resolve
			// them after all three are bound
			constraints = append(constraints, arg)
		}
	}

	if node.Subject == nil || node.Predicate == nil || node.Object == nil {
		return nil, fmt.Errorf("retrieval needs s, p and o")
	}
	node.Predicate.Subject = node.Subject
	node.Predicate.Object = node.Object

	for _, raw := range constraints {
		if err := p.attachConstraint(raw); err != nil {
			return nil, err
		}
	}

	if outAlias != "" && outAlias != node.Object.Alias {
		return nil, fmt.Errorf("retrieval output alias %q does not match object alias %q", outAlias, node.Object.Alias)
	}
	return node, nil
}

func (p *Parser) parseMath(args string, outAlias string) (Node, error) {
	content, target, _, err := parseContentTarget(args)
	if err != nil {
		return nil, err
	}
	if outAlias == "" {
		return nil, fmt.Errorf("math needs an output alias")
	}
	if err := p.checkFreshAlias(outAlias); err != nil {
		return nil, err
	}
	return &MathNode{Content: content, Target: target, Alias: outAlias}, nil
}

func (p *Parser) parseDeduce(args string, outAlias string) (Node, error) {
	content, target, op, err := parseContentTarget(args)
	if err != nil {
		return nil, err
	}
	if outAlias == "" {
		return nil, fmt.Errorf("deduce needs an output alias")
	}
	if err := p.checkFreshAlias(outAlias); err != nil {
		return nil, err
	}

	deduceOp := DeduceOp(op)
	switch deduceOp {
	case DeduceJudgement, DeduceEntailment, DeduceChoice, DeduceMultiChoice:
	case "":
		deduceOp = DeduceEntailment
	default:
		return nil, fmt.Errorf("unknown deduce op %q", op)
	}
	return &DeduceNode{Op: deduceOp, Content: content, Target: target, Alias: outAlias}, nil
}

func (p *Parser) parseOutput(args string, outAlias string) (Node, error) {
	if outAlias != "" {
		return nil, fmt.Errorf("output takes no output alias")
	}
	var aliases []string
	for _, arg := range splitTop(args, ',') {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		aliases = append(aliases, arg)
	}
	if len(aliases) == 0 {
		return nil, fmt.Errorf("output needs at least one alias")
	}
	return &OutputNode{Aliases: aliases}, nil
}

// resolveEntity parses an entity reference and binds or re-resolves its alias.
func (p *Parser) resolveEntity(raw string) (*SPOEntity, error) {
	parsed, err := p.parseEntityRef(raw)
	if err != nil {
		return nil, err
	}

	existing, ok := p.entities[parsed.Alias]
	if !ok {
		if _, taken := p.edges[parsed.Alias]; taken {
			return nil, fmt.Errorf("alias %q already bound to a relation", parsed.Alias)
		}
		p.entities[parsed.Alias] = parsed
		return parsed, nil
	}

	// later references must not redeclare the variable
	if len(parsed.Types) > 0 && len(existing.Types) > 0 && !sameLabels(parsed.TypeLabels(), existing.TypeLabels()) {
		return nil, fmt.Errorf("alias %q redeclared with different types", parsed.Alias)
	}
	if len(existing.Types) == 0 {
		existing.Types = parsed.Types
	}
	if existing.Name == "" {
		existing.Name = parsed.Name
	}
	if len(existing.IDSet) == 0 {
		existing.IDSet = parsed.IDSet
	}
	return existing, nil
}

func (p *Parser) resolveRelation(raw string) (*SPORelation, error) {
	raw = strings.TrimSpace(raw)
	aliasPart, typesPart, rest, err := splitRef(raw)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("unexpected %q after relation types", rest)
	}
	if aliasPart == "" {
		return nil, fmt.Errorf("empty alias in %q", raw)
	}

	parsed := &SPORelation{SPOBase: SPOBase{Alias: aliasPart, Types: p.makeTypes(typesPart)}}

	existing, ok := p.edges[parsed.Alias]
	if !ok {
		if _, taken := p.entities[parsed.Alias]; taken {
			return nil, fmt.Errorf("alias %q already bound to an entity", parsed.Alias)
		}
		p.edges[parsed.Alias] = parsed
		return parsed, nil
	}
	if len(parsed.Types) > 0 && len(existing.Types) > 0 && !sameLabels(parsed.TypeLabels(), existing.TypeLabels()) {
		return nil, fmt.Errorf("alias %q redeclared with different types", parsed.Alias)
	}
	if len(existing.Types) == 0 {
		existing.Types = parsed.Types
	}
	return existing, nil
}

func (p *Parser) checkFreshAlias(alias string) error {
	if _, ok := p.entities[alias]; ok {
		return fmt.Errorf("alias %q already bound to an entity", alias)
	}
	if _, ok := p.edges[alias]; ok {
		return fmt.Errorf("alias %q already bound to a relation", alias)
	}
	return nil
}

// parseEntityRef parses `alias[:type1|type2][ [name] ][ [id1|id2] ]`.
func (p *Parser) parseEntityRef(raw string) (*SPOEntity, error) {
	raw = strings.TrimSpace(raw)
	aliasPart, typesPart, rest, err := splitRef(raw)
	if err != nil {
		return nil, err
	}
	if aliasPart == "" {
		return nil, fmt.Errorf("empty alias in %q", raw)
	}

	ent := &SPOEntity{SPOBase: SPOBase{Alias: aliasPart, Types: p.makeTypes(typesPart)}}

	groups, err := bracketGroups(rest)
	if err != nil {
		return nil, fmt.Errorf("in %q: %w", raw, err)
	}
	switch len(groups) {
	case 0:
	case 1:
		// a single bracket group is a name unless it is a plain id list
		if !strings.Contains(groups[0], "`") && strings.ContainsRune(groups[0], '|') {
			ent.IDSet = splitValues(groups[0])
		} else {
			ent.Name = unescape(groups[0])
		}
	case 2:
		ent.Name = unescape(groups[0])
		ent.IDSet = splitValues(groups[1])
	default:
		return nil, fmt.Errorf("too many bracket groups in %q", raw)
	}
	return ent, nil
}

// attachConstraint parses `alias.prop<op>value` and attaches it to the
// referenced pattern.
func (p *Parser) attachConstraint(raw string) error {
	opIdx, op := findCompareOp(raw)
	if opIdx == -1 {
		return fmt.Errorf("constraint %q has no comparison operator", raw)
	}
	left := strings.TrimSpace(raw[:opIdx])
	value := unescape(strings.TrimSpace(raw[opIdx+len(op):]))

	alias, prop, ok := strings.Cut(left, ".")
	if !ok || alias == "" || prop == "" {
		return fmt.Errorf("constraint %q is not of the form alias.prop", raw)
	}

	c := Constraint{Prop: prop, Op: op, Value: value}
	if ent, ok := p.entities[alias]; ok {
		ent.AddConstraint(c)
		return nil
	}
	if rel, ok := p.edges[alias]; ok {
		rel.AddConstraint(c)
		return nil
	}
	return fmt.Errorf("constraint references unbound alias %q", alias)
}

func (p *Parser) makeTypes(typesPart string) []TypeInfo {
	if typesPart == "" {
		return nil
	}
	var types []TypeInfo
	for _, t := range splitTop(typesPart, '|') {
		t = unescape(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		info := TypeInfo{UnStd: t}
		if std, ok := p.typeMap[t]; ok {
			info.Std = std
		}
		types = append(types, info)
	}
	return types
}

// splitRef splits a reference into alias, type list and the remaining
// bracket suffix.
func splitRef(raw string) (alias, types, rest string, err error) {
	bracket := indexTop(raw, '[')
	head := raw
	if bracket != -1 {
		head = raw[:bracket]
		rest = raw[bracket:]
	}
	alias, types, _ = strings.Cut(head, ":")
	alias = strings.TrimSpace(alias)
	types = strings.TrimSpace(types)
	if strings.ContainsAny(alias, " \t") {
		return "", "", "", fmt.Errorf("invalid alias %q", alias)
	}
	return alias, types, rest, nil
}

// cutOutputAlias splits a trailing `->alias` off an expression.
func cutOutputAlias(expr string) (call string, alias string) {
	depth := 0
	inTick := false
	for i := len(expr) - 2; i >= 0; i-- {
		ch := expr[i]
		switch {
		case ch == '`':
			inTick = !inTick
		case inTick:
		case ch == ')' || ch == ']':
			depth++
		case ch == '(' || ch == '[':
			depth--
		case ch == '-' && expr[i+1] == '>' && depth == 0:
			return strings.TrimSpace(expr[:i]), strings.TrimSpace(expr[i+2:])
		}
	}
	return expr, ""
}

func parseContentTarget(args string) (content, target, op string, err error) {
	for _, arg := range splitTop(args, ',') {
		arg = strings.TrimSpace(arg)
		switch {
		case strings.HasPrefix(arg, "content="):
			content = strings.TrimSpace(arg[len("content="):])
			content = strings.TrimSuffix(strings.TrimPrefix(content, "["), "]")
		case strings.HasPrefix(arg, "target="):
			target = strings.TrimSpace(arg[len("target="):])
		case strings.HasPrefix(arg, "op="):
			op = strings.TrimSpace(arg[len("op="):])
		case arg == "":
		default:
			return "", "", "", fmt.Errorf("unexpected argument %q", arg)
		}
	}
	if content == "" && target == "" {
		return "", "", "", fmt.Errorf("missing content and target")
	}
	return content, target, op, nil
}

func findCompareOp(s string) (int, CompareOp) {
	inTick := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '`' {
			inTick = !inTick
			continue
		}
		if inTick {
			continue
		}
		switch ch {
		case '>', '<':
			if i+1 < len(s) && s[i+1] == '=' {
				return i, CompareOp(s[i : i+2])
			}
			return i, CompareOp(s[i : i+1])
		case '=':
			return i, OpEqual
		}
	}
	return -1, ""
}

// splitTop splits s on sep at depth zero, outside backtick-escaped segments
// and outside bracket or paren groups.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth := 0
	inTick := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == '`':
			inTick = !inTick
		case inTick:
		case ch == '[' || ch == '(':
			depth++
		case ch == ']' || ch == ')':
			depth--
		case ch == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// indexTop returns the index of the first occurrence of ch outside
// backtick-escaped segments, or -1.
func indexTop(s string, ch byte) int {
	inTick := false
	for i := 0; i < len(s); i++ {
		if s[i] == '`' {
			inTick = !inTick
			continue
		}
		if !inTick && s[i] == ch {
			return i
		}
	}
	return -1
}

// bracketGroups parses a sequence of `[...]` groups and returns their raw
// contents.
func bracketGroups(s string) ([]string, error) {
	var groups []string
	s = strings.TrimSpace(s)
	for s != "" {
		if s[0] != '[' {
			return nil, fmt.Errorf("unexpected %q, want '['", s)
		}
		inTick := false
		end := -1
		for i := 1; i < len(s); i++ {
			if s[i] == '`' {
				inTick = !inTick
				continue
			}
			if !inTick && s[i] == ']' {
				end = i
				break
			}
		}
		if end == -1 {
			return nil, fmt.Errorf("unclosed bracket in %q", s)
		}
		groups = append(groups, strings.TrimSpace(s[1:end]))
		s = strings.TrimSpace(s[end+1:])
	}
	return groups, nil
}

func splitValues(s string) []string {
	var out []string
	for _, v := range splitTop(s, '|') {
		v = unescape(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// unescape strips surrounding backticks and turns a doubled backtick inside
// an escaped segment into a literal pipe.
func unescape(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, "``", "|")
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}
