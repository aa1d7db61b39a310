package producer

import "fmt"

// DeviceError reports a fatal frame source failure, such as a disconnected
// device or a failed read.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("frame source: %v", e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ClassificationError reports a fatal classifier failure. "No face detected" is
// never reported this way; it resolves to the neutral label instead.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classifier: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}
