// Package observability provides metrics, tracing, and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrAlgorithm = "algorithm"
	attrSuccess   = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func algorithmAttr(algorithm string) attribute.KeyValue {
	return attribute.String(attrAlgorithm, algorithm)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// normalizePath collapses record IDs to placeholders so metric cardinality
// stays bounded: /v1/jobs/job_ab12cd34ef56/logs -> /v1/jobs/{jobId}/logs.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case strings.HasPrefix(seg, "job_"):
			segments[i] = "{jobId}"
		case strings.HasPrefix(seg, "dataset_"):
			segments[i] = "{datasetId}"
		case strings.HasPrefix(seg, "result_"):
			segments[i] = "{resultId}"
		}
	}
	// File download paths carry arbitrary filenames as the last segment.
	if len(segments) >= 2 && segments[len(segments)-2] == "files" && segments[len(segments)-1] != "" {
		segments[len(segments)-1] = "{filename}"
	}
	return strings.Join(segments, "/")
}
