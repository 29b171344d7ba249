package worker

import "errors"

var (
	// ErrProcessing marks a terminal job failure: bad input, a failing tool or a timeout.
	ErrProcessing = errors.New("processing failed")
	// ErrUnsupportedImage is returned when sniffed content is not a decodable raster.
	ErrUnsupportedImage = errors.New("unsupported image format")
	// ErrNoExtractor is returned for a job type with no registered extractor.
	ErrNoExtractor = errors.New("no extractor for job type")
)
