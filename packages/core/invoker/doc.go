// Package invoker resolves and calls the funcs bound to leaf nodes.
//
// Discovery registers every Binding in a Registry and then seals it; from that point the
// registry is read concurrently by all running test cases. An Invoker looks a binding up,
// asks the Resolver for the instance owning it, calls it with its arguments and turns the
// returned error, or a recovered panic, into an outcome through the classifier.
package invoker
