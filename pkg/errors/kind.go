package errors

// Domain is one of the fixed top-level error categories. Every Kind
// belongs to exactly one domain, reflected in its numeric code range.
type Domain string

const (
	DomainNetwork    Domain = "network"
	DomainDatabase   Domain = "database"
	DomainValidation Domain = "validation"
	DomainStorage    Domain = "storage"
	DomainExport     Domain = "export"
	DomainPermission Domain = "permission"
	DomainSystem     Domain = "system"
)

// Domains lists every domain in display order.
func Domains() []Domain {
	return []Domain{
		DomainNetwork,
		DomainDatabase,
		DomainValidation,
		DomainStorage,
		DomainExport,
		DomainPermission,
		DomainSystem,
	}
}

// Kind is the closed set of error variants. Each kind maps to exactly
// one (domain, code, severity, retryable) tuple; the mapping lives in
// the definition table and is never modified at runtime, so codes stay
// stable identifiers for analytics grouping across versions.
type Kind int

const (
	// Network (codes 1001-1099)
	KindOffline Kind = iota + 1
	KindConnectionLost
	KindDNSFailure
	KindInvalidURL
	KindInvalidResponse
	KindTimeout
	KindServerError
	KindClientError
	KindRateLimited
	KindMaintenance
	KindEncodingFailed
	KindDecodingFailed
	KindCancelled

	// Database (codes 2001-2099)
	KindConnectionFailed
	KindQueryFailed
	KindMigrationFailed
	KindRecordNotFound
	KindDuplicateRecord
	KindTransactionFailed
	KindDatabaseCorrupted

	// Validation (codes 3001-3099)
	KindInvalidInput
	KindMissingField
	KindInvalidAmount
	KindInvalidDate
	KindOutOfRange
	KindInvalidFormat

	// Storage (codes 4001-4099)
	KindFileNotFound
	KindReadFailed
	KindWriteFailed
	KindDiskFull
	KindQuotaExceeded
	KindFileCorrupted

	// Export (codes 5001-5099)
	KindSerializationFailed
	KindCSVGenerationFailed
	KindReportGenerationFailed
	KindUnsupportedFormat
	KindEmptyDataset

	// Permission (codes 6001-6099)
	KindAccessDenied
	KindAuthenticationRequired
	KindSessionExpired
	KindInsufficientRights

	// System (codes 9001-9099)
	KindUnknown
	KindInternal
	KindResourceExhausted
	KindConfigurationInvalid
	KindNotImplemented
)

// String returns the bare variant name, e.g. "Timeout". This is the
// error_type used by the analytics engine for grouping.
func (k Kind) String() string {
	return lookup(k).Name
}

// Code returns the kind's stable numeric code.
func (k Kind) Code() int {
	return lookup(k).Code
}

// Domain returns the kind's domain.
func (k Kind) Domain() Domain {
	return lookup(k).Domain
}

// Severity returns the kind's static severity.
func (k Kind) Severity() Severity {
	return lookup(k).Severity
}

// Retryable reports whether re-attempting the same operation may
// succeed. This is a static property of the kind, never computed from
// runtime state.
func (k Kind) Retryable() bool {
	return lookup(k).Retryable
}

// Message returns the kind's human-readable description.
func (k Kind) Message() string {
	return lookup(k).Message
}

// RecoveryHint returns actionable guidance a UI can show next to the
// error without knowing anything else about it.
func (k Kind) RecoveryHint() string {
	return lookup(k).Hint
}
