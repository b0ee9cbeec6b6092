// Package kernel is a small real-time kernel for single-core targets.
//
// It multiplexes one execution core among prioritised threads, keeps a
// delta-queue of virtual timers advanced by the system tick, and provides
// event sources, semaphores and mailboxes for threads and interrupt handlers
// to synchronise with.
//
// All kernel state is guarded by a single critical-section gate. Every
// operation comes in up to three flavours:
//
//   - methods on *Kernel lock the gate themselves and may only be called from
//     thread context with the gate released;
//   - methods on Locked (I-class) assume the gate is held; they never block and
//     are the only API available to interrupt handlers and timer callbacks;
//   - methods on Sys (S-class) assume the gate is held by the calling thread
//     and may reschedule. A Sys token is only obtained through Kernel.Lock.
//
// On the host every thread is a goroutine, and exactly one goroutine owns the
// CPU at any time: switching threads hands a token from one goroutine to the
// next. Interrupts raised from other goroutines are latched and taken by the
// CPU owner whenever interrupts are enabled (the gate is released or the
// system is idle).
package kernel
