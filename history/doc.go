// Package history keeps finished workflow executions so they can be looked
// up after ExecuteWorkflow returned.
//
// InMemoryStore is the default used by the engine. It retains a bounded
// number of executions and evicts the oldest first. The sqlite subpackage
// provides a durable implementation of the same core.ExecutionStore
// contract.
package history
