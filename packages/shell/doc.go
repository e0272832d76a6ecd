// Package shell runs shell commands as step bindings.
//
// A Runner is the instance bound to the "shell" owner. Step turns a command into an
// invoker.Func: named arguments are exported as environment variables, positional
// arguments are appended shell-quoted, and a non-zero exit becomes an *ExitError whose
// indicator is "exit:<code>", so the classification table can map exit codes to statuses.
package shell
