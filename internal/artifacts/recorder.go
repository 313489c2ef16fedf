// Package artifacts moves bulky benchmark outputs (rendered layouts,
// eigenvector dumps, edge lists) into the blob store and fills in the row
// fields that reference them.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"spectrabench/internal/blob"
	"spectrabench/pkg/domain"
)

// DefaultInlineLimit is the largest image kept in image_blob.
const DefaultInlineLimit = 256 << 10

// Key prefixes for each artifact family.
const (
	VisualizationPrefix = "visualizations"
	EigenvectorPrefix   = "eigenvectors"
	EdgeListPrefix      = "edgelists"
)

// ErrEmptyArtifact is returned when there is nothing to store.
var ErrEmptyArtifact = errors.New("artifacts: empty payload")

// Recorder writes artifacts to a blob.Store.
type Recorder struct {
	store       blob.Store
	inlineLimit int
	newID       func() string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithInlineLimit overrides the inline image threshold. A negative limit
// sends every image to the blob store.
func WithInlineLimit(n int) Option {
	return func(r *Recorder) { r.inlineLimit = n }
}

// WithIDFunc replaces the uuid generator used for object keys.
func WithIDFunc(fn func() string) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRecorder constructs a Recorder over store.
func NewRecorder(store blob.Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, inlineLimit: DefaultInlineLimit, newID: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying blob store.
func (r *Recorder) Store() blob.Store { return r.store }

// InlineLimit reports the active inline image threshold.
func (r *Recorder) InlineLimit() int { return r.inlineLimit }

// StoreVisualization attaches image to viz. Small images are inlined into
// ImageBlob; larger ones are uploaded and referenced by ImagePath.
func (r *Recorder) StoreVisualization(ctx context.Context, viz domain.Visualization, image []byte) (domain.Visualization, error) {
	if len(image) == 0 {
		return viz, ErrEmptyArtifact
	}
	if viz.NetworkID <= 0 {
		return viz, &domain.ConstraintViolation{Entity: domain.EntityVisualization, Field: "network_id", Err: domain.ErrMissingRequiredField}
	}
	viz = viz.WithDefaults()
	if r.inlineLimit >= 0 && len(image) <= r.inlineLimit {
		viz.ImageBlob = append([]byte(nil), image...)
		viz.ImagePath = nil
		return viz, nil
	}
	ext, contentType := imageFormat(viz.ImageFormat)
	key := path.Join(VisualizationPrefix, strconv.FormatInt(viz.NetworkID, 10), r.newID()+"."+ext)
	info, err := r.store.Put(ctx, key, bytes.NewReader(image), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"network_id": strconv.FormatInt(viz.NetworkID, 10),
			"layout":     viz.LayoutAlgorithm,
		},
	})
	if err != nil {
		return viz, fmt.Errorf("store visualization: %w", err)
	}
	viz.ImageBlob = nil
	viz.ImagePath = domain.Ptr(info.Key)
	return viz, nil
}

// EigenvectorDocument is the JSON layout of an eigenvector artifact.
type EigenvectorDocument struct {
	Eigenvalues []float64   `json:"eigenvalues,omitempty"`
	Vectors     [][]float64 `json:"vectors"`
}

// StoreEigenvectors uploads vectors and points exp.EigenvectorsPath at them.
// Inline eigenvalues and an external reference are mutually exclusive on the
// row, so any eigenvalues on exp move into the document and are cleared.
func (r *Recorder) StoreEigenvectors(ctx context.Context, exp domain.Experiment, vectors [][]float64) (domain.Experiment, error) {
	if len(vectors) == 0 {
		return exp, ErrEmptyArtifact
	}
	if exp.NetworkID <= 0 || exp.AlgorithmID <= 0 {
		return exp, &domain.ConstraintViolation{Entity: domain.EntityExperiment, Field: "eigenvectors_path", Err: domain.ErrMissingRequiredField, Detail: "network_id and algorithm_id are required to key the artifact"}
	}
	for i, vec := range vectors {
		for j, x := range vec {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return exp, &domain.ConstraintViolation{Entity: domain.EntityExperiment, Field: "eigenvectors_path", Err: domain.ErrTypeMismatch, Detail: fmt.Sprintf("vector %d component %d is not finite", i, j)}
			}
		}
	}
	doc, err := json.Marshal(EigenvectorDocument{Eigenvalues: exp.Eigenvalues, Vectors: vectors})
	if err != nil {
		return exp, fmt.Errorf("encode eigenvectors: %w", err)
	}
	key := path.Join(EigenvectorPrefix,
		strconv.FormatInt(exp.NetworkID, 10),
		strconv.FormatInt(exp.AlgorithmID, 10),
		r.newID()+".json")
	info, err := r.store.Put(ctx, key, bytes.NewReader(doc), blob.PutOptions{ContentType: "application/json"})
	if err != nil {
		return exp, fmt.Errorf("store eigenvectors: %w", err)
	}
	exp.Eigenvalues = nil
	exp.EigenvectorsPath = domain.Ptr(info.Key)
	return exp, nil
}

// LoadEigenvectors reads back a document written by StoreEigenvectors.
func (r *Recorder) LoadEigenvectors(ctx context.Context, key string) (EigenvectorDocument, error) {
	_, rc, err := r.store.Get(ctx, key)
	if err != nil {
		return EigenvectorDocument{}, err
	}
	defer func() { _ = rc.Close() }()
	var doc EigenvectorDocument
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return EigenvectorDocument{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, nil
}

// StoreEdgeList uploads an edge list and sets network.FilePath.
func (r *Recorder) StoreEdgeList(ctx context.Context, network domain.Network, edges io.Reader) (domain.Network, error) {
	if edges == nil {
		return network, ErrEmptyArtifact
	}
	key := path.Join(EdgeListPrefix, r.newID()+".txt")
	meta := map[string]string{}
	if name := strings.TrimSpace(network.Name); name != "" {
		meta["network"] = name
	}
	info, err := r.store.Put(ctx, key, edges, blob.PutOptions{ContentType: "text/plain", Metadata: meta})
	if err != nil {
		return network, fmt.Errorf("store edge list: %w", err)
	}
	if info.Size == 0 {
		_, _ = r.store.Delete(ctx, info.Key)
		return network, ErrEmptyArtifact
	}
	network.FilePath = domain.Ptr(info.Key)
	return network, nil
}

// OpenArtifact streams a stored artifact. Callers close the reader.
func (r *Recorder) OpenArtifact(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	return r.store.Get(ctx, key)
}

// ArtifactURL returns a time-limited GET URL when the backend supports it.
func (r *Recorder) ArtifactURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return r.store.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: expiry})
}

// Discard removes an artifact whose row was never committed. Missing keys are
// not an error.
func (r *Recorder) Discard(ctx context.Context, key string) error {
	_, err := r.store.Delete(ctx, key)
	return err
}

func imageFormat(format string) (ext, contentType string) {
	switch strings.ToUpper(strings.TrimSpace(format)) {
	case "PNG", "":
		return "png", "image/png"
	case "SVG":
		return "svg", "image/svg+xml"
	case "JPG", "JPEG":
		return "jpg", "image/jpeg"
	case "PDF":
		return "pdf", "application/pdf"
	default:
		return strings.ToLower(strings.TrimSpace(format)), "application/octet-stream"
	}
}
