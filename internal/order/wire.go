package order

// ErrorInfo is the wire form of a rejection.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// CommandResponse is returned for every submitted command. A duplicate
// submission returns the response recorded for the first one.
type CommandResponse struct {
	CommandID string     `json:"command_id"`
	Success   bool       `json:"success"`
	OrderID   string     `json:"order_id,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// Succeeded builds a success response.
func Succeeded(commandID, orderID string) CommandResponse {
	return CommandResponse{CommandID: commandID, Success: true, OrderID: orderID}
}

// Rejected builds a failure response from err.
func Rejected(commandID string, err error) CommandResponse {
	return CommandResponse{CommandID: commandID, Success: false, Error: ToErrorInfo(err)}
}

// SyncRequest asks for everything after SinceSequence. ServerEpoch is the
// epoch the client last synced against; empty means unknown.
type SyncRequest struct {
	SinceSequence int64  `json:"since_sequence"`
	ServerEpoch   string `json:"server_epoch,omitempty"`
}

// SyncResponse carries either an event slice (incremental) or the
// snapshots of every active order (full).
type SyncResponse struct {
	Events           []Event    `json:"events"`
	ActiveOrders     []Snapshot `json:"active_orders"`
	ServerSequence   int64      `json:"server_sequence"`
	RequiresFullSync bool       `json:"requires_full_sync"`
	ServerEpoch      string     `json:"server_epoch"`
}
