package dataset

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func idxImages(t *testing.T, n, rows, cols int) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range []int32{0x00000803, int32(n), int32(rows), int32(cols)} {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, v))
	}
	for i := 0; i < n*rows*cols; i++ {
		buf.WriteByte(byte(i % 256))
	}
	return gzipBytes(t, buf.Bytes())
}

func idxLabels(t *testing.T, labels []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range []int32{0x00000801, int32(len(labels))} {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, v))
	}
	buf.Write(labels)
	return gzipBytes(t, buf.Bytes())
}

func newMirror(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	files := map[string][]byte{
		"train-images-idx3-ubyte.gz": idxImages(t, 4, 2, 2),
		"train-labels-idx1-ubyte.gz": idxLabels(t, []byte{0, 1, 2, 3}),
		"t10k-images-idx3-ubyte.gz":  idxImages(t, 2, 2, 2),
		"t10k-labels-idx1-ubyte.gz":  idxLabels(t, []byte{9, 8}),
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
}

func TestProviderDownloadsAndCachesIDX(t *testing.T) {
	var hits atomic.Int32
	mirror := newMirror(t, &hits)
	defer mirror.Close()

	cacheDir := t.TempDir()
	p := NewProvider(cacheDir, WithMirror("MNIST", mirror.URL))

	train, test, err := p.DownloadDataset(context.Background(), "MNIST")
	require.NoError(t, err)
	assert.Equal(t, 4, train.Len())
	assert.Equal(t, 4, train.Dim())
	assert.Equal(t, 10, train.NumClasses())
	assert.Equal(t, 2, test.Len())
	assert.Equal(t, 9, test.Label(0))
	assert.Equal(t, int32(4), hits.Load())

	// a fresh provider on the same cache reads from disk only
	fresh := NewProvider(cacheDir, WithMirror("MNIST", mirror.URL))
	_, _, err = fresh.DownloadDataset(context.Background(), "MNIST")
	require.NoError(t, err)
	assert.Equal(t, int32(4), hits.Load())
}

func TestProviderRejectsUnknownDataset(t *testing.T) {
	p := NewProvider(t.TempDir())

	_, _, err := p.DownloadDataset(context.Background(), "CIFAR")
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestProviderRequiresMirrorForMissingFiles(t *testing.T) {
	p := NewProvider(t.TempDir())

	_, _, err := p.DownloadDataset(context.Background(), "EMNIST")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestProviderServesSynthetic(t *testing.T) {
	cfg := SyntheticConfig{Classes: 4, Dim: 3, TrainPerClass: 10, TestPerClass: 5, Separation: 3, Noise: 1}
	p := NewProvider(t.TempDir(), WithSynthetic(cfg, 11))

	train, test, err := p.DownloadDataset(context.Background(), SyntheticName)
	require.NoError(t, err)
	assert.Equal(t, 40, train.Len())
	assert.Equal(t, 20, test.Len())

	again, _, err := p.DownloadDataset(context.Background(), SyntheticName)
	require.NoError(t, err)
	assert.Same(t, train, again)
}
