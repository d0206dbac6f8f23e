// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate: a controllable clock, a scripted executor that records
// every call, a recording event sink, a sleep recorder and a fluent step
// builder. They are not intended for production usage.
package testutil
