package errors

// Error Code Format: AABBCCC (7 digits)
//
//	AA  (00-99): Service/Module code - identifies the source service
//	BB  (00-99): Category code - identifies the error category
//	CCC (000-999): Sequence number - specific error within the category

// Service codes.
const (
	// ServiceCommon holds base errors shared by all services.
	ServiceCommon = 0

	// ServiceRetrieval is the retrieval pipeline service.
	ServiceRetrieval = 30
)

// Category codes.
const (
	CategorySuccess    = 0
	CategoryRequest    = 1
	CategoryAuth       = 2
	CategoryPermission = 3
	CategoryResource   = 4
	CategoryConflict   = 5
	CategoryRateLimit  = 6
	CategoryInternal   = 7
	CategoryDatabase   = 8
	CategoryCache      = 9
	CategoryNetwork    = 10
	CategoryTimeout    = 11
	CategoryConfig     = 12
)

// MakeCode composes an error code from service, category and sequence.
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode splits an error code into service, category and sequence.
func ParseCode(code int) (service, category, sequence int) {
	service = code / 100000
	category = (code / 1000) % 100
	sequence = code % 1000
	return
}
