package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theblitlabs/fedsim/internal/core/config"
)

type memoryStore struct {
	objects map[string]string
	types   map[string]string
	err     error
}

func (m *memoryStore) Upload(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if m.objects == nil {
		m.objects = map[string]string{}
		m.types = map[string]string{}
	}
	m.objects[key] = string(data)
	m.types[key] = contentType
	return "memory://" + key, nil
}

func TestS3SinkUploadsBothFiles(t *testing.T) {
	store := &memoryStore{}
	result := sampleResult()

	require.NoError(t, NewS3Sink(store).Write(context.Background(), result))

	stem := result.Params.ExportStem()
	rounds, ok := store.objects["simulations/"+stem+".csv"]
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(rounds, "Round,TrainingLoss,ValidationLoss,ValidationAccuracy\n"))
	assert.Equal(t, 3, strings.Count(rounds, "\n"))

	test, ok := store.objects["simulations/"+stem+"-test.csv"]
	require.True(t, ok)
	assert.Equal(t, "Loss,Accuracy\n0.85,0.65\n", test)
	assert.Equal(t, "text/csv", store.types["simulations/"+stem+"-test.csv"])
}

func TestS3SinkPropagatesUploadErrors(t *testing.T) {
	boom := errors.New("access denied")
	err := NewS3Sink(&memoryStore{err: boom}).Write(context.Background(), sampleResult())
	assert.ErrorIs(t, err, boom)
}

func TestNewS3ServiceValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		aws  config.AWSConfig
	}{
		{"no credentials", config.AWSConfig{Region: "eu-west-1", BucketName: "runs"}},
		{"no region", config.AWSConfig{AccessKeyID: "id", SecretAccessKey: "secret", BucketName: "runs"}},
		{"no bucket", config.AWSConfig{AccessKeyID: "id", SecretAccessKey: "secret", Region: "eu-west-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3Service(&config.Config{AWS: tt.aws})
			assert.Error(t, err)
		})
	}

	svc, err := NewS3Service(&config.Config{AWS: config.AWSConfig{
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		Region:          "eu-west-1",
		BucketName:      "runs",
		Endpoint:        "http://127.0.0.1:9000",
	}})
	require.NoError(t, err)
	assert.Equal(t, "runs", svc.bucketName)
}
