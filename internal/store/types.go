package store

import "time"

// Node is the persisted row for one configured AVS instance.
type Node struct {
	MachineID       string
	Name            string
	NodeType        string
	Chain           string
	ImageTag        string
	ImageDigest     string
	OperatorAddress string
	ActiveSet       bool
	MetricsAlive    bool
	NodeRunning     bool
	UpdatedAt       time.Time
}

// MetricRow is one persisted metric sample.
type MetricRow struct {
	MachineID  string
	AVSName    string
	Name       string
	Value      float64
	Attributes map[string]string
	CreatedAt  time.Time
}

// LogRow is one persisted log line.
type LogRow struct {
	MachineID string
	AVSName   string
	Level     string
	Text      string
	CreatedAt time.Time
}

// ActiveAlert is a currently-open alert row.
type ActiveAlert struct {
	AlertID        string
	MachineID      string
	NodeName       string
	Kind           string
	Detail         string
	EmailState     string
	ChatState      string
	PagingState    string
	AcknowledgedAt *time.Time
	CreatedAt      time.Time
}

// HistoricalAlert is a resolved alert row.
type HistoricalAlert struct {
	AlertID    string
	MachineID  string
	NodeName   string
	Kind       string
	Detail     string
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// SendState names per-channel alert dispatch state.
const (
	SendStateNoSend  = "no_send"
	SendStatePending = "pending"
	SendStateSent    = "sent"
	SendStateFailed  = "failed"
)
