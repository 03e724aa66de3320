package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
	ErrBlankName       ErrorCode = "blank_device_name"
	ErrBlankAddress    ErrorCode = "blank_address"

	// Command resolution errors
	ErrUnknownFunction ErrorCode = "scpi_unknown_function"
	ErrInvalidRange    ErrorCode = "scpi_invalid_range"
	ErrUnknownCommand  ErrorCode = "scpi_unknown_command"

	// Connection errors
	ErrConnectionFailed ErrorCode = "connection_failed"
	ErrNotConnected     ErrorCode = "not_connected"
	ErrAddressInUse     ErrorCode = "address_in_use"
	ErrSessionClosed    ErrorCode = "session_closed"

	// Acquisition errors
	ErrQueryTimeout        ErrorCode = "query_timeout"
	ErrQueryIO             ErrorCode = "query_io_failed"
	ErrParseFailed         ErrorCode = "parse_failed"
	ErrNoDevicesConfigured ErrorCode = "no_devices_configured"
	ErrAlreadyRunning      ErrorCode = "acquisition_already_running"

	// Export errors
	ErrNoData            ErrorCode = "export_no_data"
	ErrUnsupportedFormat ErrorCode = "export_unsupported_format"
	ErrExportIO          ErrorCode = "export_io_failed"

	// Archive errors
	ErrInvalidDBPath     ErrorCode = "archive_invalid_db_path"
	ErrStorageInit       ErrorCode = "archive_init_failed"
	ErrStorageClose      ErrorCode = "archive_close_failed"
	ErrTransactionFailed ErrorCode = "archive_transaction_failed"
	ErrSchemaFailed      ErrorCode = "archive_schema_failed"

	// Lifecycle errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrTimeout        ErrorCode = "operation_timeout"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:            "Internal error occurred",
	ErrInvalidArgument:     "Invalid argument provided",
	ErrUnavailable:         "Service unavailable",
	ErrInvalidConfig:       "Invalid configuration",
	ErrReadConfig:          "Failed to read configuration",
	ErrInvalidInterval:     "Invalid interval value",
	ErrInvalidLogLevel:     "Invalid log level",
	ErrBlankName:           "Device name must not be blank",
	ErrBlankAddress:        "Device address must not be blank",
	ErrUnknownFunction:     "Unknown measurement function",
	ErrInvalidRange:        "Range not valid for measurement function",
	ErrUnknownCommand:      "Unknown common command",
	ErrConnectionFailed:    "Failed to connect to instrument",
	ErrNotConnected:        "Device is not connected",
	ErrAddressInUse:        "Device already connected under a different address",
	ErrSessionClosed:       "Session is closed",
	ErrQueryTimeout:        "Instrument query timed out",
	ErrQueryIO:             "Instrument query failed",
	ErrParseFailed:         "Failed to parse instrument reply",
	ErrNoDevicesConfigured: "No enabled connected devices configured",
	ErrAlreadyRunning:      "Acquisition is already running",
	ErrNoData:              "No measurements to export",
	ErrUnsupportedFormat:   "Unsupported export format",
	ErrExportIO:            "Failed to write export file",
	ErrInvalidDBPath:       "Invalid archive database path",
	ErrStorageInit:         "Failed to initialize archive",
	ErrStorageClose:        "Failed to close archive",
	ErrTransactionFailed:   "Archive transaction failed",
	ErrSchemaFailed:        "Archive schema validation failed",
	ErrInitFailed:          "Initialization failed",
	ErrShutdownFailed:      "Shutdown failed",
	ErrTimeout:             "Operation timed out",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
