// Package harness runs conformance scenarios against the world view and
// reads the YAML transaction files the CLI imports.
//
// # Transaction Format
//
// Identifiers are names. A name is hashed into a stable ID unless it is a
// 64-digit hex ID; "root" is the Universe node.
//
//	transactions:
//	  - ts: 100
//	    source: alice
//	    records:
//	      - create_node: {id: notes, kind: label, label: Notes}
//	      - create_node: {id: todo, kind: markdown, label: TODO, text: "- milk"}
//	      - create_edge: {id: notes-todo, kind: contains, from: notes, to: todo}
//	  - ts: 200
//	    source: alice
//	    records:
//	      - update_node: {id: todo, text: "- milk\n- eggs"}
//	      - update_edge: {id: notes-todo, validity: {from: 100, to: 500}}
//	      - delete_node: todo
//
// Kinds are written as label, markdown, graph, tabular, formatted, schema,
// concrete or mime:<type>. Edge kinds are equality, definition, using and
// contains. An edge with no validity is valid from its transaction's
// timestamp.
//
// # Scenario Format
//
// A scenario is a list of steps, each a transaction as above with a
// required ts and source, delivered in file order:
//
//	name: late_arrival
//	description: "A late transaction is replayed in timestamp order"
//	steps:
//	  - ts: 300
//	    source: s1
//	    records: [...]
//	    expect: {outcome: rejected, code: CONSTRAINT_VIOLATION}
//	assertions:
//	  - type: node
//	    node: a
//	    edges: [a-b]
//
// # Assertion Types
//
//   - node: the node exists; kind, label, deleted, edges and history are
//     checked when given
//   - node_absent: no such node was ever created
//   - edge: the edge exists; kind, from, to, deleted and history are checked
//     when given
//   - edge_absent: no such edge was ever created
//   - aliases: the node's alias class is exactly nodes
//   - search: SearchNodes(query, limit) returns nodes in that order
//   - transactions: count transactions were applied, genesis included
package harness
