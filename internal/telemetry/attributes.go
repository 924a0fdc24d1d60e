// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by catalog and download spans.
const (
	DeviceIDKey = "device.id"

	CatalogTotalKey   = "catalog.total_count"
	CatalogEntriesKey = "catalog.entries"
	CatalogOriginKey  = "catalog.origin"
	CatalogForceKey   = "catalog.force"

	DownloadFilenameKey = "download.filename"
	DownloadSizeKey     = "download.size_bytes"
	DownloadAttemptKey  = "download.attempt"
	DownloadSessionKey  = "download.session_id"

	HTTPRouteKey = "http.route"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// CatalogAttributes describes a served catalog snapshot.
func CatalogAttributes(deviceID string, total, entries int, origin string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DeviceIDKey, deviceID),
		attribute.Int(CatalogTotalKey, total),
		attribute.Int(CatalogEntriesKey, entries),
		attribute.String(CatalogOriginKey, origin),
	}
}

// DownloadAttributes describes one transfer attempt.
func DownloadAttributes(sessionID, filename string, size int64, attempt int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(DownloadSessionKey, sessionID))
	}
	return append(attrs,
		attribute.String(DownloadFilenameKey, filename),
		attribute.Int64(DownloadSizeKey, size),
		attribute.Int(DownloadAttemptKey, attempt),
	)
}

// ErrorAttributes tags a span with an error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// RecordError marks span as failed. A nil err is ignored.
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(ErrorAttributes(errorType)...)
	span.SetStatus(codes.Error, err.Error())
}
