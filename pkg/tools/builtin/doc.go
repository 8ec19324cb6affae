// Package builtin holds the sample tools the demos and servers register:
// a weather stub, world clock, stock market lookup, calculator and the
// query_recipes retrieval tool.
package builtin
