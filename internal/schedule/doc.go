// Package schedule multiplexes periodic and one-shot work onto a single
// wall-clock-aligned one-second tick.
//
// Three event kinds share one type (Event, tagged by Kind):
//   - tick events run on every tick, concurrently, and are never backed off
//   - scheduled events run once at an epoch second and back off on failure
//   - repeatable events re-arm themselves on fixed wall-clock slots
//
// Due scheduled events run strictly in sequence (timestamp, then id order).
// The next tick is armed only after the current tick has fully settled.
package schedule
