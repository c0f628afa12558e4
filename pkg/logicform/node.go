package logicform

import (
	"fmt"
	"strings"
)

// NodeKind identifies the operator of a plan node.
type NodeKind string

const (
	KindRetrieval NodeKind = "retrieval"
	KindMath      NodeKind = "math"
	KindDeduce    NodeKind = "deduce"
	KindOutput    NodeKind = "output"
)

// DeduceOp selects the sub-operator of a Deduce node.
type DeduceOp string

const (
	DeduceJudgement   DeduceOp = "judgement"
	DeduceEntailment  DeduceOp = "entailment"
	DeduceChoice      DeduceOp = "choice"
	DeduceMultiChoice DeduceOp = "multiChoice"
)

// Node is one typed plan step. The set of implementations is closed:
// RetrievalNode, MathNode, DeduceNode and OutputNode.
type Node interface {
	Kind() NodeKind
	String() string
}

// RetrievalNode matches a subject-predicate-object pattern against the graph.
type RetrievalNode struct {
	Subject   *SPOEntity
	Predicate *SPORelation
	Object    *SPOEntity
}

func (n *RetrievalNode) Kind() NodeKind { return KindRetrieval }

func (n *RetrievalNode) String() string {
	return fmt.Sprintf("Retrieval(s=%s, p=%s, o=%s)", n.Subject, n.Predicate, n.Object)
}

// MathNode computes a value from earlier bindings. Content is the raw
// computation description with backtick-quoted alias references, Target
// describes what the computation should produce, and Alias is the name the
// result is bound under.
type MathNode struct {
	Content string
	Target  string
	Alias   string
}

func (n *MathNode) Kind() NodeKind { return KindMath }

func (n *MathNode) String() string {
	return fmt.Sprintf("Math(content=[%s], target=%s)->%s", n.Content, n.Target, n.Alias)
}

// DeduceNode runs one deduction sub-operator over earlier bindings.
type DeduceNode struct {
	Op      DeduceOp
	Content string
	Target  string
	Alias   string
}

func (n *DeduceNode) Kind() NodeKind { return KindDeduce }

func (n *DeduceNode) String() string {
	return fmt.Sprintf("Deduce(op=%s, content=[%s], target=%s)->%s", n.Op, n.Content, n.Target, n.Alias)
}

// OutputNode renders the named aliases as the final answer.
type OutputNode struct {
	Aliases []string
}

func (n *OutputNode) Kind() NodeKind { return KindOutput }

func (n *OutputNode) String() string {
	return fmt.Sprintf("Output(%s)", strings.Join(n.Aliases, ", "))
}
