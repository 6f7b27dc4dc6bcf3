package main

// CallSummary is storing stratsel run summary information.
type CallSummary struct {
	// Version stores stratsel version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// RunID identifies the run.
	RunID string `json:"runID"`
	// Command is the executed command.
	Command string `json:"command"`
	// Time is the computations time in seconds.
	TotalTime float64 `json:"time"`
	// Result is the command result: membership, counts, a start
	// point, a sample summary or an integral estimate.
	Result interface{} `json:"result,omitempty"`
}
