// Package manifest loads stepwise manifests and turns them into execution trees.
//
// A manifest is a YAML or JSON serialization of the tree itself: a suite with optional
// hooks, and a list of tests, each with hooks and steps. A step either runs a shell command
// (run), polls one until it succeeds (waitFor), or ends with a fixed status (action). A
// step can be written as a bare string, which is shorthand for run.
//
//	name: checkout
//	before:
//	  - docker compose up -d
//	tests:
//	  - name: pays with card
//	    tags: ["@smoke", "@owner:payments"]
//	    steps:
//	      - run: ./scripts/pay.sh card
//	      - action: pending
//	        message: refunds not implemented
//
// Run steps may capture values from their output and check it with expect, see packages
// capture and assertions.
//
// Tests with style "bdd" become a test node whose steps are each wrapped in a step
// container carrying the manifest's stepHooks.
package manifest
