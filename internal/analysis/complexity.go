package analysis

import (
	"strconv"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// cyclomaticComplexity counts decision points under n, starting from the
// base complexity of 1 for the single entry path. Node kinds cover every
// grammar this package analyzes; kinds a given grammar never produces
// simply never match.
func cyclomaticComplexity(n *tree_sitter.Node) int {
	if n == nil {
		return 1
	}
	complexity := 1
	countDecisionPoints(n, &complexity)
	return complexity
}

func countDecisionPoints(n *tree_sitter.Node, complexity *int) {
	if n == nil {
		return
	}

	switch n.Kind() {
	case "if_statement", "if_expression",
		"for_statement", "for_range_statement", "for_in_statement", "for_expression",
		"while_statement", "while_expression", "do_while_statement", "do_statement",
		"case_clause", "case_statement", "switch_case", "when_entry",
		"expression_case", "type_case",
		"match_arm", "except_clause", "catch_clause", "catch_declaration",
		"conditional_expression", "ternary_expression":
		*complexity++
	case "binary_expression", "boolean_operator":
		if op := n.ChildByFieldName("operator"); op != nil {
			switch op.Kind() {
			case "&&", "||", "and", "or", "??":
				*complexity++
			}
		}
	}

	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		countDecisionPoints(n.Child(i), complexity)
	}
}

// withComplexity annotates meta with n's cyclomatic complexity, allocating
// the map when the caller has no other metadata to carry.
func withComplexity(meta map[string]string, n *tree_sitter.Node) map[string]string {
	if meta == nil {
		meta = make(map[string]string, 1)
	}
	meta["complexity"] = strconv.Itoa(cyclomaticComplexity(n))
	return meta
}
