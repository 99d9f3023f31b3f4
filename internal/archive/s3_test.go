package archive

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/pill-monitor/internal/model"
)

func TestObjectKey(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 4, 2, 8, 3, 9, 0, time.FixedZone("x", 3*3600))
	require.Equal(t, "history/2026/04/02/history-20260402T050309Z.json", objectKey(at))
}

func TestEncode(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	b, err := encode(at, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"exportedAt":"2026-04-02T08:00:00Z","entries":[]}`, string(b))

	b, err = encode(at, []model.HistoryEntry{{ID: "1", MedicineName: "A", Dose: model.DoseMorning, Action: model.ActionTaken, Count: 1, Timestamp: at}})
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal(b, &doc))
	require.Len(t, doc.Entries, 1)
	require.Equal(t, model.DoseMorning, doc.Entries[0].Dose)
}

func TestNewS3Exporter_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewS3Exporter(S3Config{})
	require.ErrorContains(t, err, "endpoint")
	_, err = NewS3Exporter(S3Config{Endpoint: "minio:9000"})
	require.ErrorContains(t, err, "access key")
	_, err = NewS3Exporter(S3Config{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "b"})
	require.ErrorContains(t, err, "bucket")

	e, err := NewS3Exporter(S3Config{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "b", Bucket: "h"})
	require.NoError(t, err)
	require.Equal(t, "us-east-1", e.region)
}
