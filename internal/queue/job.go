// Package queue carries media jobs from the upload coordinator to workers.
package queue

import (
	"context"
	"fmt"
)

// JobType names the media category a job belongs to.
type JobType string

const (
	JobImage    JobType = "IMAGE"
	JobVideo    JobType = "VIDEO"
	JobPDF      JobType = "PDF"
	JobDocument JobType = "DOCUMENT"
)

// Topic names, one per job type.
const (
	TopicImage    = "image:variant:queue"
	TopicVideo    = "video:thumbnail:queue"
	TopicPDF      = "pdf:preview:queue"
	TopicDocument = "doc:preview:queue"
)

// Job is the wire payload published for a completed upload.
type Job struct {
	FileID     string  `json:"fileId"`
	StorageKey string  `json:"storageKey"`
	MimeType   string  `json:"mimeType"`
	JobType    JobType `json:"jobType"`
}

// TopicFor maps a job type to its topic.
func TopicFor(t JobType) (string, error) {
	switch t {
	case JobImage:
		return TopicImage, nil
	case JobVideo:
		return TopicVideo, nil
	case JobPDF:
		return TopicPDF, nil
	case JobDocument:
		return TopicDocument, nil
	default:
		return "", fmt.Errorf("unknown job type %q", t)
	}
}

// Topics lists every topic in a stable order.
func Topics() []string {
	return []string{TopicImage, TopicVideo, TopicPDF, TopicDocument}
}

// Publisher sends jobs. Delivery is at-most-once.
type Publisher interface {
	Publish(ctx context.Context, topic string, job Job) error
}

// Subscriber delivers jobs for every topic registered on a Router until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, router *Router) error
}

// Bus is a transport that both publishes and subscribes.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}
