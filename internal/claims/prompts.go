package claims

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/extract.md
	extractPrompt string

	//go:embed prompts/decision.md
	decisionPrompt string

	//go:embed prompts/decision_request.md
	decisionRequestTemplate string
)

// ClauseSeparator separates evidence chunks in the decision request.
const ClauseSeparator = "\n---\n"

const noClauses = "(no matching clauses were found)"

func buildDecisionRequest(claimJSON string, clauses []string) string {
	joined := strings.Join(clauses, ClauseSeparator)
	if strings.TrimSpace(joined) == "" {
		joined = noClauses
	}

	request := strings.ReplaceAll(decisionRequestTemplate, "{{CLAIM_JSON}}", claimJSON)
	return strings.ReplaceAll(request, "{{CLAUSES}}", joined)
}
