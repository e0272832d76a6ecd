// Package capture reads values out of a finished shell command.
//
// A value can come from the trimmed output, a single line, the exit code, the duration or,
// when the output is a JSON document, a gjson path into it:
//
//	captures:
//	  - name: orderId
//	    from: json.order.id
//	  - name: lastLine
//	    from: line[-1]
//
// Captured values are stored in the run's resolver and used by later steps as {{orderId}}.
package capture
