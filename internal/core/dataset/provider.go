package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/petar/GoMNIST"
	"github.com/theblitlabs/fedsim/internal/core/rng"
	"github.com/theblitlabs/fedsim/pkg/logger"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrNotCached      = errors.New("dataset not cached and no mirror configured")
)

// idxSpec names the four gzip IDX files of an image classification dataset.
type idxSpec struct {
	classes     int
	trainImages string
	trainLabels string
	testImages  string
	testLabels  string
}

var mnistFiles = idxSpec{
	classes:     10,
	trainImages: "train-images-idx3-ubyte.gz",
	trainLabels: "train-labels-idx1-ubyte.gz",
	testImages:  "t10k-images-idx3-ubyte.gz",
	testLabels:  "t10k-labels-idx1-ubyte.gz",
}

var idxSpecs = map[string]idxSpec{
	"MNIST":        mnistFiles,
	"FashionMNIST": mnistFiles,
	"EMNIST": {
		classes:     47,
		trainImages: "emnist-balanced-train-images-idx3-ubyte.gz",
		trainLabels: "emnist-balanced-train-labels-idx1-ubyte.gz",
		testImages:  "emnist-balanced-test-images-idx3-ubyte.gz",
		testLabels:  "emnist-balanced-test-labels-idx1-ubyte.gz",
	},
}

// Names lists the datasets a Provider can serve.
func Names() []string {
	return []string{"MNIST", "FashionMNIST", "EMNIST", SyntheticName}
}

type loaded struct {
	train *Dataset
	test  *Dataset
}

// Provider loads named datasets from a local cache directory, fetching missing
// files from a mirror first. Loaded datasets are kept in memory for reuse.
type Provider struct {
	cacheDir      string
	mirrors       map[string]string
	client        *http.Client
	synthetic     SyntheticConfig
	syntheticSeed int64

	mu     sync.Mutex
	loaded map[string]loaded
}

type ProviderOption func(*Provider)

func WithMirror(name, baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.mirrors[name] = baseURL
		}
	}
}

func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.client = client
	}
}

func WithSynthetic(cfg SyntheticConfig, seed int64) ProviderOption {
	return func(p *Provider) {
		p.synthetic = cfg
		p.syntheticSeed = seed
	}
}

func NewProvider(cacheDir string, opts ...ProviderOption) *Provider {
	p := &Provider{
		cacheDir:      cacheDir,
		mirrors:       make(map[string]string),
		client:        &http.Client{Timeout: 5 * time.Minute},
		synthetic:     DefaultSyntheticConfig(),
		syntheticSeed: 42,
		loaded:        make(map[string]loaded),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DownloadDataset returns the train and test sets of name.
func (p *Provider) DownloadDataset(ctx context.Context, name string) (*Dataset, *Dataset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.loaded[name]; ok {
		return l.train, l.test, nil
	}

	var (
		train, test *Dataset
		err         error
	)

	if name == SyntheticName {
		train, test, err = GenerateSynthetic(p.synthetic, rng.New(p.syntheticSeed).Stream("synthetic"))
	} else {
		spec, ok := idxSpecs[name]
		if !ok {
			return nil, nil, fmt.Errorf("dataset %q: %w", name, ErrUnknownDataset)
		}
		train, test, err = p.loadIDX(ctx, name, spec)
	}
	if err != nil {
		return nil, nil, err
	}

	p.loaded[name] = loaded{train: train, test: test}
	return train, test, nil
}

func (p *Provider) loadIDX(ctx context.Context, name string, spec idxSpec) (*Dataset, *Dataset, error) {
	log := logger.WithComponent("dataset_provider")

	dir := filepath.Join(p.cacheDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	for _, file := range []string{spec.trainImages, spec.trainLabels, spec.testImages, spec.testLabels} {
		if err := p.ensureCached(ctx, name, dir, file); err != nil {
			return nil, nil, err
		}
	}

	trainSet, err := GoMNIST.ReadSet(filepath.Join(dir, spec.trainImages), filepath.Join(dir, spec.trainLabels))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s training set: %w", name, err)
	}
	testSet, err := GoMNIST.ReadSet(filepath.Join(dir, spec.testImages), filepath.Join(dir, spec.testLabels))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s test set: %w", name, err)
	}

	train, err := fromIDXSet(name, trainSet, spec.classes)
	if err != nil {
		return nil, nil, err
	}
	test, err := fromIDXSet(name, testSet, spec.classes)
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("dataset", name).
		Int("train_samples", train.Len()).
		Int("test_samples", test.Len()).
		Msg("Dataset loaded")

	return train, test, nil
}

func (p *Provider) ensureCached(ctx context.Context, name, dir, file string) error {
	target := filepath.Join(dir, file)
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	mirror, ok := p.mirrors[name]
	if !ok {
		return fmt.Errorf("%s: missing %s in %s: %w", name, file, dir, ErrNotCached)
	}

	url := strings.TrimRight(mirror, "/") + "/" + file
	log := logger.WithComponent("dataset_provider")
	log.Info().Str("dataset", name).Str("url", url).Msg("Downloading dataset file")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: unexpected status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, file+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", file, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}

	return os.Rename(tmp.Name(), target)
}

func fromIDXSet(name string, set *GoMNIST.Set, classes int) (*Dataset, error) {
	if len(set.Images) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", name, ErrEmptyDataset)
	}
	dim := set.NRow * set.NCol
	data := make([]float64, len(set.Images)*dim)
	for i, img := range set.Images {
		row := data[i*dim : (i+1)*dim]
		for j, px := range img {
			row[j] = float64(px) / 255.0
		}
	}

	labels := make([]int, len(set.Labels))
	for i, l := range set.Labels {
		labels[i] = int(l)
	}

	return New(name, mat.NewDense(len(set.Images), dim, data), labels, classes)
}
