// Package classifier maps failures raised by step and hook bindings to outcomes.
//
// Classification is data-driven: a table of indicator rules decides which failures
// count as SKIPPED or PENDING. An error advertises its indicator by implementing
//
//	interface{ Indicator() string }
//
// anywhere in its wrap chain. ErrSkip and ErrPending carry the "skip" and "pending"
// indicators; Skip and Pending wrap a reason around them. Assertion failures keep their
// message, every other failure is reported as FAILED with a generic message.
// Stack traces are attached according to Policy, independent of classification.
package classifier
