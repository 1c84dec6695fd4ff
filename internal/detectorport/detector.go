// Package detectorport declares the Object Detector Port: a single
// detect(image) -> boxes call used by the scan pipeline to locate a
// product title region (and anything else the underlying model is trained
// on) before OCR runs. Implementations wrap whatever object-detection
// model is configured; this package only owns the contract and shared
// constants.
package detectorport

import "context"

// Box is one detected region: its corners, the detector's confidence, and
// the class the model assigned it.
type Box struct {
	X1, Y1, X2, Y2 float64
	Confidence     float64
	ClassID        int
	ClassName      string
}

// DefaultTitleClassID and DefaultTitleClassName identify which detected
// class the scan pipeline treats as the product title region, matching
// the reference model's label convention.
const (
	DefaultTitleClassID   = 1
	DefaultTitleClassName = "title"
)

// Detector is the port the scan pipeline consumes.
type Detector interface {
	// Detect runs object detection over raw image bytes and returns every
	// box the model found, in no particular order.
	Detect(ctx context.Context, image []byte) ([]Box, error)
}

// TitleBox returns the highest-confidence box whose class matches
// titleClassID, or ok=false if none of the detected boxes are a title.
func TitleBox(boxes []Box, titleClassID int) (Box, bool) {
	var best Box
	found := false
	for _, b := range boxes {
		if b.ClassID != titleClassID {
			continue
		}
		if !found || b.Confidence > best.Confidence {
			best = b
			found = true
		}
	}
	return best, found
}
