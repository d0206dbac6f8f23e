package session

import "github.com/hupe1980/opmesh/core"

// mutatingActions are the actions whose records are related across providers
// when they touch the same type.
var mutatingActions = map[string]bool{
	"create": true,
	"update": true,
	"delete": true,
}

func isRelevant(rec core.OperationRecord, op core.Operation) bool {
	return rec.Provider == op.Provider ||
		rec.Action == op.Action ||
		isRelated(rec.Operation, op)
}

// isRelated reports whether both operations mutate the same type.
func isRelated(a, b core.Operation) bool {
	return mutatingActions[a.Action] && mutatingActions[b.Action] && a.Type == b.Type
}
