package engine

// Version is the seatbelt release, reported in bug notices and by the CLI.
// Overridden at build time with -ldflags "-X .../engine.Version=...".
var Version = "0.1.0"
