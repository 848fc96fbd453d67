package runtime

import "sdynjit/internal/values"

// GlobalObject is the process-lifetime root object every compiled
// function's TOP opcode resolves to (spec §4.5 "global_object:
// process-lifetime root object exposed at a fixed address"; §5 "Shared
// resources": "The global object ... process-wide, initialised once at
// startup and reachable from every compiled function").
var GlobalObject = values.NewObject()

// GlobalObjectAddr is the fixed address form internal/codegen embeds
// directly into emitted code for the TOP opcode (spec §6 "reachable from
// every compiled function").
func GlobalObjectAddr() uintptr { return values.PointerOf(GlobalObject) }

// UndefinedAddr is the address PALLOCA fills a fresh pointer-stack frame
// with (spec §4.4 "fill the whole range with the singleton undefined
// pointer. This ensures the GC sees valid references while the frame is
// live").
func UndefinedAddr() uintptr { return values.PointerOf(values.Undefined) }
