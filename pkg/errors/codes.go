package errors

import "sort"

// Definition describes one kind's static properties. The table below is
// the single source of truth for code assignment; codes are never
// reused or renumbered once released.
type Definition struct {
	Kind      Kind     `json:"-"`
	Name      string   `json:"name"`
	Code      int      `json:"code"`
	Domain    Domain   `json:"domain"`
	Severity  Severity `json:"severity"`
	Retryable bool     `json:"retryable"`
	Message   string   `json:"message"`
	Hint      string   `json:"hint"`
}

var definitions = map[Kind]Definition{
	// Network (1001-1099). Retryable kinds here are exactly: offline,
	// connection lost, DNS failure, timeout, server error, rate
	// limited, maintenance.
	KindOffline: {
		Name: "Offline", Code: 1001, Domain: DomainNetwork,
		Severity: SeverityWarning, Retryable: true,
		Message: "no network connection",
		Hint:    "Check your internet connection and try again",
	},
	KindConnectionLost: {
		Name: "ConnectionLost", Code: 1002, Domain: DomainNetwork,
		Severity: SeverityWarning, Retryable: true,
		Message: "connection lost during request",
		Hint:    "The connection dropped mid-operation; retrying usually recovers",
	},
	KindDNSFailure: {
		Name: "DNSFailure", Code: 1003, Domain: DomainNetwork,
		Severity: SeverityError, Retryable: true,
		Message: "could not resolve host",
		Hint:    "Check DNS settings or try a different network",
	},
	KindInvalidURL: {
		Name: "InvalidURL", Code: 1004, Domain: DomainNetwork,
		Severity: SeverityError, Retryable: false,
		Message: "request URL is malformed",
		Hint:    "The address is invalid; this will not succeed on retry",
	},
	KindInvalidResponse: {
		Name: "InvalidResponse", Code: 1005, Domain: DomainNetwork,
		Severity: SeverityError, Retryable: false,
		Message: "server returned an unexpected response",
		Hint:    "The response could not be understood; report if it persists",
	},
	KindTimeout: {
		Name: "Timeout", Code: 1006, Domain: DomainNetwork,
		Severity: SeverityWarning, Retryable: true,
		Message: "request timed out",
		Hint:    "The server took too long; try again in a moment",
	},
	KindServerError: {
		Name: "ServerError", Code: 1007, Domain: DomainNetwork,
		Severity: SeverityError, Retryable: true,
		Message: "server error",
		Hint:    "The server had a problem; retrying may succeed",
	},
	KindClientError: {
		Name: "ClientError", Code: 1008, Domain: DomainNetwork,
		Severity: SeverityError, Retryable: false,
		Message: "request rejected by server",
		Hint:    "The request itself is wrong; retrying will not help",
	},
	KindRateLimited: {
		Name: "RateLimited", Code: 1009, Domain: DomainNetwork,
		Severity: SeverityWarning, Retryable: true,
		Message: "too many requests",
		Hint:    "Slow down; the limit resets shortly",
	},
	KindMaintenance: {
		Name: "Maintenance", Code: 1010, Domain: DomainNetwork,
		Severity: SeverityWarning, Retryable: true,
		Message: "service temporarily unavailable",
		Hint:    "The service is under maintenance; try again later",
	},
	KindEncodingFailed: {
		Name: "EncodingFailed", Code: 1011, Domain: DomainNetwork,
		Severity: SeverityError, Retryable: false,
		Message: "could not encode request payload",
		Hint:    "The outgoing data could not be serialized; report this",
	},
	KindDecodingFailed: {
		Name: "DecodingFailed", Code: 1012, Domain: DomainNetwork,
		Severity: SeverityError, Retryable: false,
		Message: "could not decode server response",
		Hint:    "The response format changed or is corrupt; report this",
	},
	KindCancelled: {
		Name: "Cancelled", Code: 1013, Domain: DomainNetwork,
		Severity: SeverityInfo, Retryable: false,
		Message: "operation cancelled",
		Hint:    "The operation was cancelled by the caller",
	},

	// Database (2001-2099)
	KindConnectionFailed: {
		Name: "ConnectionFailed", Code: 2001, Domain: DomainDatabase,
		Severity: SeverityCritical, Retryable: false,
		Message: "could not open database",
		Hint:    "Check the database path, permissions, and free space",
	},
	KindQueryFailed: {
		Name: "QueryFailed", Code: 2002, Domain: DomainDatabase,
		Severity: SeverityError, Retryable: false,
		Message: "database query failed",
		Hint:    "The operation could not complete; check the underlying cause",
	},
	KindMigrationFailed: {
		Name: "MigrationFailed", Code: 2003, Domain: DomainDatabase,
		Severity: SeverityCritical, Retryable: false,
		Message: "schema migration failed",
		Hint:    "The database schema could not be upgraded; restore from backup",
	},
	KindRecordNotFound: {
		Name: "RecordNotFound", Code: 2004, Domain: DomainDatabase,
		Severity: SeverityWarning, Retryable: false,
		Message: "record not found",
		Hint:    "The requested record does not exist or was deleted",
	},
	KindDuplicateRecord: {
		Name: "DuplicateRecord", Code: 2005, Domain: DomainDatabase,
		Severity: SeverityWarning, Retryable: false,
		Message: "record already exists",
		Hint:    "A record with the same identity is already stored",
	},
	KindTransactionFailed: {
		Name: "TransactionFailed", Code: 2006, Domain: DomainDatabase,
		Severity: SeverityError, Retryable: false,
		Message: "transaction failed",
		Hint:    "The change was rolled back; no partial data was written",
	},
	KindDatabaseCorrupted: {
		Name: "DatabaseCorrupted", Code: 2007, Domain: DomainDatabase,
		Severity: SeverityFatal, Retryable: false,
		Message: "database file is corrupted",
		Hint:    "Restore from a backup; the current file is unreadable",
	},

	// Validation (3001-3099)
	KindInvalidInput: {
		Name: "InvalidInput", Code: 3001, Domain: DomainValidation,
		Severity: SeverityWarning, Retryable: false,
		Message: "input is invalid",
		Hint:    "Correct the highlighted value and try again",
	},
	KindMissingField: {
		Name: "MissingField", Code: 3002, Domain: DomainValidation,
		Severity: SeverityWarning, Retryable: false,
		Message: "required field is missing",
		Hint:    "Fill in the required field",
	},
	KindInvalidAmount: {
		Name: "InvalidAmount", Code: 3003, Domain: DomainValidation,
		Severity: SeverityWarning, Retryable: false,
		Message: "amount is not valid",
		Hint:    "Enter a positive amount within the allowed range",
	},
	KindInvalidDate: {
		Name: "InvalidDate", Code: 3004, Domain: DomainValidation,
		Severity: SeverityWarning, Retryable: false,
		Message: "date is not valid",
		Hint:    "Enter a date in the expected format",
	},
	KindOutOfRange: {
		Name: "OutOfRange", Code: 3005, Domain: DomainValidation,
		Severity: SeverityWarning, Retryable: false,
		Message: "value is out of range",
		Hint:    "Use a value inside the permitted bounds",
	},
	KindInvalidFormat: {
		Name: "InvalidFormat", Code: 3006, Domain: DomainValidation,
		Severity: SeverityWarning, Retryable: false,
		Message: "value has the wrong format",
		Hint:    "Match the expected format and try again",
	},

	// Storage (4001-4099)
	KindFileNotFound: {
		Name: "FileNotFound", Code: 4001, Domain: DomainStorage,
		Severity: SeverityError, Retryable: false,
		Message: "file not found",
		Hint:    "The file may have been moved or deleted",
	},
	KindReadFailed: {
		Name: "ReadFailed", Code: 4002, Domain: DomainStorage,
		Severity: SeverityError, Retryable: false,
		Message: "could not read file",
		Hint:    "Check file permissions and that the file is intact",
	},
	KindWriteFailed: {
		Name: "WriteFailed", Code: 4003, Domain: DomainStorage,
		Severity: SeverityError, Retryable: false,
		Message: "could not write file",
		Hint:    "Check permissions and available disk space",
	},
	KindDiskFull: {
		Name: "DiskFull", Code: 4004, Domain: DomainStorage,
		Severity: SeverityCritical, Retryable: false,
		Message: "disk is full",
		Hint:    "Free up space; writes are failing until then",
	},
	KindQuotaExceeded: {
		Name: "QuotaExceeded", Code: 4005, Domain: DomainStorage,
		Severity: SeverityError, Retryable: false,
		Message: "storage quota exceeded",
		Hint:    "Delete old data or raise the quota",
	},
	KindFileCorrupted: {
		Name: "FileCorrupted", Code: 4006, Domain: DomainStorage,
		Severity: SeverityCritical, Retryable: false,
		Message: "file is corrupted",
		Hint:    "The file failed integrity checks; restore from a copy",
	},

	// Export (5001-5099)
	KindSerializationFailed: {
		Name: "SerializationFailed", Code: 5001, Domain: DomainExport,
		Severity: SeverityError, Retryable: false,
		Message: "could not serialize export data",
		Hint:    "One or more records could not be encoded; report this",
	},
	KindCSVGenerationFailed: {
		Name: "CSVGenerationFailed", Code: 5002, Domain: DomainExport,
		Severity: SeverityError, Retryable: false,
		Message: "could not generate CSV",
		Hint:    "Try another export format",
	},
	KindReportGenerationFailed: {
		Name: "ReportGenerationFailed", Code: 5003, Domain: DomainExport,
		Severity: SeverityError, Retryable: false,
		Message: "could not generate report",
		Hint:    "Check there is data in the selected period",
	},
	KindUnsupportedFormat: {
		Name: "UnsupportedFormat", Code: 5004, Domain: DomainExport,
		Severity: SeverityWarning, Retryable: false,
		Message: "export format not supported",
		Hint:    "Use one of: json, csv, text",
	},
	KindEmptyDataset: {
		Name: "EmptyDataset", Code: 5005, Domain: DomainExport,
		Severity: SeverityInfo, Retryable: false,
		Message: "nothing to export",
		Hint:    "No records match the selected period",
	},

	// Permission (6001-6099)
	KindAccessDenied: {
		Name: "AccessDenied", Code: 6001, Domain: DomainPermission,
		Severity: SeverityError, Retryable: false,
		Message: "access denied",
		Hint:    "You do not have permission for this operation",
	},
	KindAuthenticationRequired: {
		Name: "AuthenticationRequired", Code: 6002, Domain: DomainPermission,
		Severity: SeverityWarning, Retryable: false,
		Message: "authentication required",
		Hint:    "Sign in and try again",
	},
	KindSessionExpired: {
		Name: "SessionExpired", Code: 6003, Domain: DomainPermission,
		Severity: SeverityWarning, Retryable: false,
		Message: "session expired",
		Hint:    "Sign in again to continue",
	},
	KindInsufficientRights: {
		Name: "InsufficientRights", Code: 6004, Domain: DomainPermission,
		Severity: SeverityError, Retryable: false,
		Message: "insufficient rights",
		Hint:    "Ask an administrator to grant the required role",
	},

	// System (9001-9099)
	KindUnknown: {
		Name: "Unknown", Code: 9001, Domain: DomainSystem,
		Severity: SeverityError, Retryable: true,
		Message: "unexpected error",
		Hint:    "Try again; report if the problem persists",
	},
	KindInternal: {
		Name: "Internal", Code: 9002, Domain: DomainSystem,
		Severity: SeverityCritical, Retryable: false,
		Message: "internal error",
		Hint:    "This is a bug; please report it with the error code",
	},
	KindResourceExhausted: {
		Name: "ResourceExhausted", Code: 9003, Domain: DomainSystem,
		Severity: SeverityCritical, Retryable: false,
		Message: "system resources exhausted",
		Hint:    "Close other work or restart the application",
	},
	KindConfigurationInvalid: {
		Name: "ConfigurationInvalid", Code: 9004, Domain: DomainSystem,
		Severity: SeverityError, Retryable: false,
		Message: "configuration is invalid",
		Hint:    "Fix the configuration file and restart",
	},
	KindNotImplemented: {
		Name: "NotImplemented", Code: 9005, Domain: DomainSystem,
		Severity: SeverityWarning, Retryable: false,
		Message: "operation not implemented",
		Hint:    "This feature is not available in this build",
	},
}

// codeIndex maps numeric codes back to kinds, built once at init.
var codeIndex = func() map[int]Kind {
	idx := make(map[int]Kind, len(definitions))
	for kind, def := range definitions {
		idx[def.Code] = kind
	}
	return idx
}()

var unknownDef = Definition{
	Kind: KindUnknown, Name: "Unknown", Code: 9001, Domain: DomainSystem,
	Severity: SeverityError, Retryable: true,
	Message: "unexpected error",
	Hint:    "Try again; report if the problem persists",
}

func lookup(k Kind) Definition {
	if def, ok := definitions[k]; ok {
		return def
	}
	return unknownDef
}

// Lookup returns the definition for a kind. Unregistered values fall
// back to the Unknown definition so lookups never fail.
func Lookup(k Kind) Definition {
	return lookup(k)
}

// KindForCode resolves a numeric code back to its kind. Unrecognized
// codes resolve to KindUnknown.
func KindForCode(code int) Kind {
	if kind, ok := codeIndex[code]; ok {
		return kind
	}
	return KindUnknown
}

// AllDefinitions returns every registered definition sorted by code.
func AllDefinitions() []Definition {
	defs := make([]Definition, 0, len(definitions))
	for _, def := range definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Code < defs[j].Code })
	return defs
}

// DefinitionsByDomain returns the definitions in one domain sorted by code.
func DefinitionsByDomain(domain Domain) []Definition {
	var defs []Definition
	for _, def := range definitions {
		if def.Domain == domain {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Code < defs[j].Code })
	return defs
}

// DefinitionsBySeverity returns the definitions at one severity sorted by code.
func DefinitionsBySeverity(severity Severity) []Definition {
	var defs []Definition
	for _, def := range definitions {
		if def.Severity == severity {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Code < defs[j].Code })
	return defs
}
