package ai

import (
	"fmt"
	"strings"
)

const nerPrompt = `# Task Context
You extract named entities from a user question so they can be linked
against a knowledge graph.

# Detailed Task Description & Rules
- Extract every entity that is explicitly mentioned in the question.
- For each entity, assign the most specific type you can justify from the
  question alone. Use "Others" when no specific type applies.
- Do not invent entities that are only implied.
- Keep the entity name exactly as written in the question.

# Background Data
Question:
%s

# Output Formatting
Return a JSON object with a single key "entities", an array of objects with
keys "name" and "type".`

// BuildNERPrompt returns the prompt for extracting named entities from a question.
func BuildNERPrompt(question string) string {
	return fmt.Sprintf(nerPrompt, question)
}

const standardizePrompt = `# Task Context
You normalize entity mentions from a user question into their canonical
names so they can be matched against a knowledge graph.

# Detailed Task Description & Rules
- For each mention, produce the standardized canonical name. Expand
  abbreviations and resolve aliases when the question makes the referent
  unambiguous.
- If a mention is already canonical or you are unsure, return it unchanged.
- Never drop a mention and never add new ones; output exactly one
  standardized name per input mention, in the same order.

# Background Data
Question:
%s

Mentions:
%s

# Output Formatting
Return a JSON object with a single key "standardized", an array of strings
aligned with the input mentions.`

// BuildStandardizePrompt returns the prompt for canonicalizing entity mentions.
func BuildStandardizePrompt(question string, mentions []string) string {
	return fmt.Sprintf(standardizePrompt, question, strings.Join(mentions, "\n"))
}

const predicateMatchPrompt = `# Task Context
You decide which relations from a knowledge graph actually answer the
intended predicate of a query edge.

# Detailed Task Description & Rules
- The query edge is given as: %s
- Each candidate below is one relation found in the graph between the same
  endpoints, written as "subjectType[subject] predicate objectType[object]".
- Select every candidate whose predicate expresses the same meaning as the
  query edge's predicate "%s", including paraphrases and inverse phrasings.
- Select nothing if no candidate matches; an empty selection is a valid answer.

# Background Data
Candidates (one per line, prefixed with their index):
%s

# Output Formatting
Return a JSON object with a single key "matches", an array of integer
indices of the matching candidates.`

// BuildPredicateMatchPrompt returns the prompt asking the model to arbitrate
// which candidate relations carry the meaning of the queried predicate.
func BuildPredicateMatchPrompt(edge string, predicate string, candidates []string) string {
	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d: %s\n", i, c)
	}
	return fmt.Sprintf(predicateMatchPrompt, edge, predicate, sb.String())
}

const mathCodePrompt = `# Task Context
You write a small Python 3 script that performs a numeric or set-based
computation for one step of a multi-step question.

# Detailed Task Description & Rules
- The computation to perform: %s
- Values retrieved in earlier steps are listed below; substitute them where
  the computation refers to them.
- The script must print only the final result to stdout with print().
- Use only the Python standard library. No input(), no file or network access.
%s
# Background Data
Known values:
%s

# Output Formatting
Return only the Python code, inside a single fenced code block.`

// BuildMathCodePrompt returns the prompt for generating a computation script.
// lastError carries the failure of a previous attempt and may be empty.
func BuildMathCodePrompt(content string, knownValues string, lastError string) string {
	errSection := ""
	if lastError != "" {
		errSection = fmt.Sprintf("- A previous attempt failed with:\n  %s\n  Fix the cause of that failure.\n", lastError)
	}
	if knownValues == "" {
		knownValues = "(none)"
	}
	return fmt.Sprintf(mathCodePrompt, content, errSection, knownValues)
}

const subQuestionPrompt = `# Task Context
You answer one sub-question of a larger question using only the evidence
provided.

# Detailed Task Description & Rules
- Answer the sub-question directly and concisely.
- Use only the graph facts and document passages below. Do not use outside
  knowledge.
- If the evidence is insufficient to answer, reply exactly: I don't know.

# Background Data
Sub-question:
%s

Graph facts:
%s

Document passages:
%s

# Output Formatting
Reply with the answer text only.`

// BuildSubQuestionPrompt returns the prompt for answering one sub-query from
// retrieved graph facts and document passages. Either evidence block may be empty.
func BuildSubQuestionPrompt(subQuery string, spoEvidence string, docEvidence string) string {
	if spoEvidence == "" {
		spoEvidence = "(none)"
	}
	if docEvidence == "" {
		docEvidence = "(none)"
	}
	return fmt.Sprintf(subQuestionPrompt, subQuery, spoEvidence, docEvidence)
}

const judgementPrompt = `# Task Context
You verify whether a statement holds given the evidence collected so far.

# Detailed Task Description & Rules
- The statement to verify: %s
- Decide strictly from the evidence below.
- If the evidence is insufficient either way, you cannot answer.

# Background Data
Evidence:
%s

# Output Formatting
Return a JSON object with keys "answered" (boolean, whether the evidence
suffices) and "answer" (string, "yes" or "no" when answered, otherwise empty).`

const entailmentPrompt = `# Task Context
You derive a conclusion from the evidence collected so far.

# Detailed Task Description & Rules
- The derivation to perform: %s
- Reason strictly from the evidence below.
- If the evidence is insufficient, you cannot answer.

# Background Data
Evidence:
%s

# Output Formatting
Return a JSON object with keys "answered" (boolean, whether the evidence
suffices) and "answer" (string, the derived conclusion when answered,
otherwise empty).`

const choicePrompt = `# Task Context
You select the single option that the evidence supports.

# Detailed Task Description & Rules
- The selection to make: %s
- Pick exactly one of the options named in the task, based strictly on the
  evidence below.
- If the evidence does not support any option, you cannot answer.

# Background Data
Evidence:
%s

# Output Formatting
Return a JSON object with keys "answered" (boolean) and "answer" (string,
the chosen option when answered, otherwise empty).`

const multiChoicePrompt = `# Task Context
You select every option that the evidence supports.

# Detailed Task Description & Rules
- The selection to make: %s
- Pick all options named in the task that the evidence below supports.
- If the evidence supports none of them, you cannot answer.

# Background Data
Evidence:
%s

# Output Formatting
Return a JSON object with keys "answered" (boolean) and "answer" (string,
the chosen options joined by commas when answered, otherwise empty).`

// BuildJudgementPrompt returns the prompt for a yes/no verification step.
func BuildJudgementPrompt(content string, evidence string) string {
	return fmt.Sprintf(judgementPrompt, content, orNone(evidence))
}

// BuildEntailmentPrompt returns the prompt for deriving a conclusion.
func BuildEntailmentPrompt(content string, evidence string) string {
	return fmt.Sprintf(entailmentPrompt, content, orNone(evidence))
}

// BuildChoicePrompt returns the prompt for a single-option selection.
func BuildChoicePrompt(content string, evidence string) string {
	return fmt.Sprintf(choicePrompt, content, orNone(evidence))
}

// BuildMultiChoicePrompt returns the prompt for a multi-option selection.
func BuildMultiChoicePrompt(content string, evidence string) string {
	return fmt.Sprintf(multiChoicePrompt, content, orNone(evidence))
}

const votePrompt = `# Task Context
Several independent attempts produced candidate answers for the same
computation. You pick the most trustworthy one.

# Detailed Task Description & Rules
- The computation was: %s
- Prefer the answer that the majority of candidates agree on.
- When there is no majority, prefer the candidate whose value is most
  plausible for the computation.

# Background Data
Candidates (one per line, prefixed with their index):
%s

# Output Formatting
Return a JSON object with a single key "index", the integer index of the
chosen candidate.`

// BuildVotePrompt returns the prompt for choosing among candidate results.
func BuildVotePrompt(content string, candidates []string) string {
	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d: %s\n", i, c)
	}
	return fmt.Sprintf(votePrompt, content, sb.String())
}

const synthesisGraphDocsPrompt = `# Task Context
You write the final answer to a user question after a multi-step retrieval
over a knowledge graph and a document corpus.

# Detailed Task Description & Rules
- Answer the question directly, then briefly support the answer.
- Ground every claim in the graph facts, the sub-question results, or the
  document passages below. Do not use outside knowledge.
- When the graph facts and the passages disagree, prefer the graph facts.
- If the evidence is insufficient, say so plainly.

# Background Data
Question:
%s

Graph facts:
%s

Sub-question results:
%s

Document passages:
%s

# Output Formatting
Reply with the answer text only.`

const synthesisGraphPrompt = `# Task Context
You write the final answer to a user question after a multi-step retrieval
over a knowledge graph.

# Detailed Task Description & Rules
- Answer the question directly, then briefly support the answer.
- Ground every claim in the graph facts or the sub-question results below.
  Do not use outside knowledge.
- If the evidence is insufficient, say so plainly.

# Background Data
Question:
%s

Graph facts:
%s

Sub-question results:
%s

# Output Formatting
Reply with the answer text only.`

const synthesisDocsPrompt = `# Task Context
You write the final answer to a user question from retrieved document
passages.

# Detailed Task Description & Rules
- Answer the question directly, then briefly support the answer.
- Ground every claim in the passages below. Do not use outside knowledge.
- If the passages are insufficient, say so plainly.

# Background Data
Question:
%s

Document passages:
%s

# Output Formatting
Reply with the answer text only.`

// BuildSynthesisPrompt returns the final-answer prompt, choosing the variant
// that matches which evidence sets are non-empty.
func BuildSynthesisPrompt(question string, spoEvidence string, subResults string, docEvidence string) string {
	hasGraph := spoEvidence != "" || subResults != ""
	hasDocs := docEvidence != ""
	switch {
	case hasGraph && hasDocs:
		return fmt.Sprintf(synthesisGraphDocsPrompt, question, orNone(spoEvidence), orNone(subResults), docEvidence)
	case hasGraph:
		return fmt.Sprintf(synthesisGraphPrompt, question, orNone(spoEvidence), orNone(subResults))
	default:
		return fmt.Sprintf(synthesisDocsPrompt, question, orNone(docEvidence))
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
