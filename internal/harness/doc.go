// Package harness runs journal scenarios: scripted sequences of actions,
// undos and redos against live objects, checked against expectations,
// assertions and golden traces.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: toggle_visible
//	description: "Property toggle then undo restores the old value"
//	classes:
//	  - ../classes/node.cue
//	session: test-session-toggle
//	merge_window: 800
//	objects:
//	  - name: n
//	    class: Node
//	    props: { visible: false }
//	steps:
//	  - at: 1000
//	  - open: { name: "Toggle Visible" }
//	  - do_property: { object: n, property: visible, value: true }
//	  - undo_property: { object: n, property: visible, value: false }
//	  - commit: {}
//	  - expect: { version: 1, has_undo: true, objects: { n: { visible: true } } }
//	  - undo: { want: true }
//	assertions:
//	  - type: trace_order
//	    kinds: [property, version_changed, commit, undo]
//	  - type: final_state
//	    object: n
//	    expect: { visible: false }
//
// Values are YAML scalars, lists and maps. A string "@name" is a reference
// to the named object; write "@@" for a literal leading "@".
//
// A step that the journal should refuse carries the expected usage error
// code:
//
//	- commit: {}
//	  error: NO_OPEN_ACTION
//
// # Determinism
//
// Every run uses a manual millisecond clock starting at 0 (moved only by
// "at" and "advance" steps), a fresh object table and a fixed session ID.
// The same scenario always yields the same trace, so traces can be compared
// byte for byte against golden files:
//
//	go test ./internal/harness -update
//
// # Recording
//
// Each run is recorded through a store.Recorder, into a private in-memory
// database unless WithStore supplies one.
package harness
