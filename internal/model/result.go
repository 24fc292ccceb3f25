package model

// Step names reported on the control channel, in run order.
const (
	StepInitializing = "Initializing"
	StepBrowser      = "Setting up browser"
	StepLogin        = "Logging into ERP system"
	StepNavigate     = "Navigating to invoice section"
	StepRows         = "Processing invoice rows"
	StepExtract      = "Extracting XML files from ZIPs"
	StepIngest       = "Importing XML files to database"
	StepComplete     = "Import process completed successfully"
)

// Progress is one periodic record emitted while a run is in flight.
type Progress struct {
	RunID    string `json:"run_id"`
	Step     string `json:"step"`
	Progress int    `json:"progress"`
	Stats    Stats  `json:"stats"`
}

// Result is the single final record of a run. Error holds the first fatal
// cause when Success is false.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Stats   Stats  `json:"stats"`
}
