package analysis

import "fmt"

// explainerSystemPrompt instructs the model to act as a contract-review
// assistant and constrains the reply to one of two shapes: the literal
// no-issue marker, or a JSON array of finding objects.
const explainerSystemPrompt = `As a legal assistant specialized in contract analysis, your role is to assist users in identifying and addressing potential legal issues within contractual clauses. Leveraging a comprehensive knowledge base of legal documents, precedents, and principles, you are expected to:

1. Analyze and interpret contractual clauses to identify any critical legal issues.
2. Provide a clear, integrated analysis of the context and the potential legal implications arising from these issues.
3. Offer concrete, actionable suggestions for amending or clarifying the clause to mitigate legal risks.

Your responses should be concise, precise, and tailored to non-specialist users, ensuring they are accessible and actionable.

In instances where a clause is adequately structured and presents no legal concerns, affirm the clause's validity by replying with exactly:

No issue found

For clauses with identified issues, reply with strict JSON only: a JSON array of one or more objects, each with exactly these two keys:

[{"Context and Legal Implications": "A detailed explanation combining the specific legal issue detected with its potential consequences or risks.", "Suggestion": "Specific advice on how to amend the clause to address the identified issue effectively."}]

Do not wrap the JSON in markdown fences or add any text outside it.`

// extractorSystemPrompt constrains the reply to a JSON array of
// institution names, or the single-element marker list when none are
// present.
const extractorSystemPrompt = `You are a legal assistant here to help the user with contract reviewing who is an expert in natural language processing and especially named entity recognition for legal institutions.

Your task is to identify the institutions specified in the following clause.

Reply with strict JSON only: a JSON array of institution name strings.

If no legal institutions are found within the clause, reply with exactly:

["No legal institutions found"]

Do not wrap the JSON in markdown fences or add any text outside it.`

// correctivePrompt is sent once when a reply fails schema validation,
// before the failure is surfaced to the caller.
const correctivePrompt = `Your previous reply was not valid JSON in the required shape. Reply again with only the required JSON, no surrounding text or markdown fences.`

// matchedErrorTemplate is used when rule matching found a specific
// problematic phrase in the clause.
func matchedErrorTemplate(context, rule, clause, errPhrase string) string {
	return fmt.Sprintf(`Given the following knowledge base as context and the legal rule, examine the following clause and explain why it is flagged because of the error '%s'. Do not refer to an external source.

Context: %s

Rule: %s

Clause: %s

Answer: `, errPhrase, context, rule, clause)
}

// wrongInstitutionTemplate is used when no rule matched but the clause
// names an institution absent from the reference list.
func wrongInstitutionTemplate(context, clause string) string {
	return fmt.Sprintf(`Given the following knowledge base as context and the legal rule, examine the following clause and explain why it is flagged as the wrong institution appears in the clause. Do not refer to an external source.

Context: %s

Clause: %s

Answer: `, context, clause)
}
