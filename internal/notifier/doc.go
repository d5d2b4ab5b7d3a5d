// Package notifier decides whether room events produce visible and audible
// alerts, and keeps that decision consistent across four asynchronous signal
// streams: live events, decryption completions, read receipts, and sync-state
// transitions.
//
// # Pipeline
//
// A live event passes, in order: the sync-state gate (only while the session
// is actively syncing), the self-origin filter, the decryption gate (events
// still decrypting wait in a bounded FIFO queue), push-rule evaluation, and
// finally dispatch through the platform capability. Handles returned by the
// platform are tracked per room so a read receipt that brings the room's
// unread count to zero can clear every alert for that room.
//
// # Concurrency
//
// All inbound signals are serialized through one channel consumed by a single
// run loop; the wait queue and the notification index are touched by nothing
// else. Listener callbacks never block: when the signal channel is full the
// signal is counted and dropped, because ingestion must not stall on the
// engine.
package notifier
