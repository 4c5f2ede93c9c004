package textsource

import "fmt"

// Stage names where acquisition can fail.
const (
	StageFetch = "fetch"
	StageSniff = "sniff"
	StageParse = "parse"
	StageOCR   = "ocr"
)

// AcquisitionError reports that no text could be obtained for a document.
type AcquisitionError struct {
	Stage string
	Key   string
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("textsource: %s %s: %v", e.Stage, e.Key, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}
