// Package prompt renders the three prompts sent to the generative model.
// Every caller-supplied fragment is sanitized before interpolation.
package prompt

import (
	"fmt"
	"strings"

	"github.com/tabletalk/tabletalk/internal/guard"
)

// BuildQueryPrompt asks the model for a single SELECT statement answering
// question against table. tableName must already be a valid identifier.
func BuildQueryPrompt(question, tableName, metadata string) string {
	table := guard.QuoteIdent(tableName)
	return fmt.Sprintf(`- System: You are an SQL query writer for a MySQL database. You write exactly one read-only SQL query that answers the question asked by the user. You know the table only from its schema below.

- Schema: %s || Table name: %s

- Example
    User: get me all the records from %s
    Answer: SELECT * FROM %s;

- Rules
    Return only the SQL query, without explanation or Markdown.
    Never modify data or schema.
    If no SQL query can be derived from the question, return the query: SELECT * FROM %s;

- Question
    User: %s

- Answer:`,
		guard.SanitizeStructured(metadata),
		table,
		table,
		table,
		table,
		strings.TrimSpace(guard.SanitizeText(question)),
	)
}

// BuildAnswerPrompt asks the model to phrase an answer to question from the
// query result rows.
func BuildAnswerPrompt(question, metadata, queryResultJSON string) string {
	return fmt.Sprintf(`You are given the 'Schema' of a database table, the 'Question' of a user and the 'Query_Result' returned by the database for that question.
Form a meaningful 'Answer' to the 'Question' by looking at the 'Query_Result'.

- Question: %s

- Schema: %s

- Query_Result: %s

- Answer:`,
		strings.TrimSpace(guard.SanitizeText(question)),
		guard.SanitizeStructured(metadata),
		guard.SanitizeStructured(queryResultJSON),
	)
}

// BuildPlotPrompt asks the model to classify question into one of the
// supported chart types and to pick the columns it refers to.
func BuildPlotPrompt(question, metadata string) string {
	return fmt.Sprintf(`You are given the 'Query' of a user and the 'Metadata' of a table.

1. Identify the kind of chart asked for in the Query:
    - 1 for a line graph or chart
    - 2 for a bar graph or chart
    - 3 for a scatter graph or chart

2. Identify the columns from the Metadata that the Query asks about.

3. Return only a JSON object in the following format, without Markdown:
{"plot": <plot number>, "columns": ["column1", "column2"]}

<Example>
Query: Plot Bar Graph for weights and heights of students
Metadata: (SNO INT PRIMARY KEY AUTO_INCREMENT, name varchar(50), weight int, height int)
Result: {"plot" : 2 , "columns" : ["weight","height"]}
</Example>

- Query: %s

- Metadata: %s

Result:`,
		strings.TrimSpace(guard.SanitizeText(question)),
		guard.SanitizeStructured(metadata),
	)
}
