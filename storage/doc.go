// Package storage provides object storage for run reports, backed by the
// local filesystem or Amazon S3 (and S3-compatible services such as MinIO).
//
//	storage:
//	  enabled: true
//	  provider: "s3"
//	  bucket: "crossmatch-reports"
//	  region: "us-east-1"
package storage
