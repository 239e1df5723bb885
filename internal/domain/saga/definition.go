package saga

// Stage definition types understood by the stage factory
const (
	StageTypeHTTP  = "http"
	StageTypeSQL   = "sql"
	StageTypeEvent = "event"
	StageTypeNoop  = "noop"
	StageTypeFail  = "fail"
)

// Definition describes a saga to build and run
type Definition struct {
	Mode   ProcessMode       `json:"mode"`
	Stages []StageDefinition `json:"stages"`
}

// StageDefinition describes one stage. Which fields apply depends on Type.
type StageDefinition struct {
	Type string `json:"type"`
	Info string `json:"info"`

	// http
	BaseURL string `json:"base_url,omitempty"`
	Path    string `json:"path,omitempty"`

	// sql
	Statement           string `json:"statement,omitempty"`
	CompensateStatement string `json:"compensate_statement,omitempty"`

	// event
	Topic             string `json:"topic,omitempty"`
	Command           string `json:"command,omitempty"`
	CompensateCommand string `json:"compensate_command,omitempty"`
}
