// Package prompt builds the instructions sent to the language model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/ericksa/contractassist/internal/repair"
)

// Task selects the analysis a prompt asks for.
type Task int

const (
	TaskClauseIdentification Task = iota + 1
	TaskNegotiationSuggestion
)

func (t Task) String() string {
	switch t {
	case TaskClauseIdentification:
		return "clause_identification"
	case TaskNegotiationSuggestion:
		return "negotiation_suggestion"
	}
	return fmt.Sprintf("task(%d)", int(t))
}

// Shape is the record layout the reply to t must hold.
func (t Task) Shape() repair.Shape {
	if t == TaskNegotiationSuggestion {
		return repair.ShapeSuggestion
	}
	return repair.ShapeClause
}

// ParseTask accepts the names used on the command line and in MCP tools.
func ParseTask(name string) (Task, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "clauses", "clause", "identify", "clause_identification":
		return TaskClauseIdentification, nil
	case "suggestions", "suggestion", "negotiation", "negotiation_suggestion":
		return TaskNegotiationSuggestion, nil
	}
	return 0, fmt.Errorf("unknown task %q", name)
}

// ClauseCategories are the clause types the model is asked to look for.
var ClauseCategories = []string{
	"Parties and Recitals",
	"Definitions",
	"Scope of Work and Deliverables",
	"Term and Renewal",
	"Termination",
	"Payment and Fees",
	"Confidentiality",
	"Intellectual Property and Ownership",
	"License Grant",
	"Warranties",
	"Indemnification",
	"Limitation of Liability",
	"Insurance",
	"Non-Compete and Non-Solicitation",
	"Data Protection and Privacy",
	"Force Majeure",
	"Assignment",
	"Notices",
	"Governing Law and Jurisdiction",
	"Dispute Resolution and Arbitration",
	"Amendment and Waiver",
	"Severability",
	"Entire Agreement",
}

const (
	documentStart = "----- CONTRACT START -----"
	documentEnd   = "----- CONTRACT END -----"
)

const clauseTemplate = `You are a contract analyst. Read the contract below and identify its clauses.

Look for clauses in these categories:
%s

Rules:
- Return one record per clause you find, in the order they appear in the contract.
- "title" is the clause category or heading. It must not be empty.
- "text" is the clause wording copied from the contract as closely as possible.
- Skip categories that do not appear. Do not invent clauses.
- Reply with a JSON array only. No markdown, no commentary.

%s
%s
%s

Reply in exactly this format:
[
  {"title": "Confidentiality", "text": "Each party shall keep the other party's Confidential Information secret."},
  {"title": "Governing Law and Jurisdiction", "text": "This Agreement is governed by the laws of the State of New York."}
]`

const suggestionTemplate = `You are a negotiation advisor reviewing a contract for the party who received it.

Instructions:
- Find passages that are one-sided, vague, unusually risky, or missing common protections.
- For each passage, quote it in "original_text" exactly as it appears in the contract.
- In "suggestion", explain the concern briefly and propose replacement wording or a counter-offer.
- Cover payment, liability, indemnity, termination, intellectual property and confidentiality where relevant.
- Keep the order in which the passages appear in the contract.
- Reply with a JSON array only. No markdown, no commentary.

%s
%s
%s

Reply in exactly this format:
[
  {"original_text": "Payment is due within 90 days of invoice.", "suggestion": "Ask for Net 30 payment terms with interest on late payments."},
  {"original_text": "The Supplier's liability is unlimited.", "suggestion": "Cap liability at the fees paid in the preceding 12 months."}
]`

// Build returns the complete prompt for task with documentText embedded
// verbatim between fixed delimiters.
func Build(task Task, documentText string) string {
	switch task {
	case TaskNegotiationSuggestion:
		return fmt.Sprintf(suggestionTemplate, documentStart, documentText, documentEnd)
	default:
		return fmt.Sprintf(clauseTemplate, bullets(ClauseCategories), documentStart, documentText, documentEnd)
	}
}

func bullets(items []string) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}
