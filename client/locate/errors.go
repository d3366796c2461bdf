package locate

import "fmt"

var (
	// ErrPermissionDenied means the position backend refused to hand out a fix.
	ErrPermissionDenied = fmt.Errorf("location permission denied")

	// ErrAcquisitionTimeout means no fix arrived within the requested timeout.
	ErrAcquisitionTimeout = fmt.Errorf("location acquisition timed out")

	// ErrWatchUnsupported means the backend can only serve one-shot fixes.
	ErrWatchUnsupported = fmt.Errorf("continuous location watch not supported")
)
