/*
Package trust implements the core of an IEC 61131-3 Structured Text
toolchain: semantic analysis over a pre-parsed syntax tree, lowering to an
executable intermediate representation, a versioned bytecode container, and
a deterministic cyclic task scheduler with expression/statement evaluator.

The lexer and concrete syntax tree parser are external collaborators; this
module consumes an already-produced syntax tree (see internal/cst for the
node-kind enumeration it expects) and never produces one itself.

Subpackages, leaves first:

	internal/types     type registry
	internal/symbols    symbol table and scope tree
	internal/cst         syntax-tree input contract
	internal/diag         diagnostics
	internal/hirdb          semantic query database
	internal/check           type checker and OOP conformance
	internal/lower            HIR to IR lowering
	internal/ir                runtime POU/task/resource definitions
	internal/storage            variable storage (globals, frames, instances, retain, I/O)
	internal/eval                 expression and statement evaluator
	internal/stdlib                 IEC standard functions and function blocks
	internal/sched                    task scheduler
	internal/ioimage                   I/O process image and driver abstraction
	internal/bytecode                    bytecode container codec
	internal/retain                       retain persistence and watchdog
	internal/rtconfig                       runtime.toml / io.toml loading
	internal/control                          control/debug endpoint server

License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.
*/
package trust
