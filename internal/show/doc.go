// Package show implements the timeline playback engine.
//
// A show is a compiled sequence of steps, each holding a duration and a
// set of action blocks addressed to device classes (lights, leds,
// coils, gi, flashers) or to events and triggers. Shows are compiled
// once from YAML step records, may declare parenthesized (token)
// placeholders anywhere in their step tree, and are played as
// instances: private token-substituted copies with their own priority,
// speed, loop count and position.
//
// The Controller owns every running instance and arbitrates their
// competing writes once per tick: requests are collected into
// per-class queues, collapsed so at most one survives per device, and
// applied in a fixed class order against a device ownership cache.
// Playlists and externally streamed shows route through the same
// queues; nothing in this package writes outputs directly.
//
// Everything mutates on a single control-loop goroutine. The only
// cross-thread entry points are Controller.Do and the external show
// command queue, both drained once per tick.
package show
