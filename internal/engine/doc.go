// Package engine contains the game loop and simulation logic.
// This is the heartbeat of Stall Rush.
//
// ARCHITECTURAL RULE: all mutation happens through Engine methods, which are
// serialized by the engine's own mutex. Time is always passed in; nothing in
// this package reads the wall clock, so every behavior can be replayed
// deterministically in tests.
package engine
