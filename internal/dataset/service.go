package dataset

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"grnd/internal/apperrors"
	"grnd/internal/store"
)

// List pagination bounds, matching the job manager's.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Service manages dataset records. Name uniqueness is enforced under a
// single registration mutex; reads go straight to the store.
type Service struct {
	store *store.Store

	registerMu sync.Mutex
}

// NewService creates a dataset service over the given store.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Register validates and persists a new dataset record. The referenced file
// must exist; its size is recorded.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*Dataset, error) {
	if req.Name == "" {
		return nil, apperrors.Validation("name", "dataset name is required")
	}
	if !req.Type.Valid() {
		return nil, apperrors.Validation("datasetType", "unknown dataset type")
	}
	if req.FilePath == "" {
		return nil, apperrors.Validation("filePath", "dataset file path is required")
	}

	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, apperrors.Validation("filePath", "dataset file not found: "+req.FilePath)
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	taken, err := s.nameTaken(req.Name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict("dataset", "dataset name already registered: "+req.Name)
	}

	now := time.Now().UTC()
	ds := &Dataset{
		ID:          store.NewID("dataset"),
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		FilePath:    req.FilePath,
		Genes:       req.Genes,
		Samples:     req.Samples,
		Metadata:    req.Metadata,
		SizeBytes:   info.Size(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ds.Metadata == nil {
		ds.Metadata = map[string]any{}
	}

	if err := s.store.Put(ds.ID, ds); err != nil {
		return nil, apperrors.Persistence("dataset.register", err)
	}

	slog.Info("Dataset registered", "datasetId", ds.ID, "name", ds.Name, "type", ds.Type)
	return ds, nil
}

// Get returns a dataset by ID.
func (s *Service) Get(ctx context.Context, datasetID string) (*Dataset, error) {
	var ds Dataset
	if err := s.store.Get(datasetID, &ds); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("dataset", datasetID)
		}
		return nil, apperrors.Persistence("dataset.get", err)
	}
	return &ds, nil
}

// Resolve returns the on-disk path for a dataset, for job submission.
func (s *Service) Resolve(ctx context.Context, datasetID string) (string, error) {
	ds, err := s.Get(ctx, datasetID)
	if err != nil {
		return "", err
	}
	return ds.FilePath, nil
}

// List returns datasets ordered by creation time descending, plus the total
// count.
func (s *Service) List(ctx context.Context, offset, limit int) ([]*Dataset, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ids, err := s.store.IDs()
	if err != nil {
		return nil, 0, apperrors.Persistence("dataset.list", err)
	}

	datasets := make([]*Dataset, 0, len(ids))
	for _, id := range ids {
		var ds Dataset
		if err := s.store.Get(id, &ds); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, 0, apperrors.Persistence("dataset.list", err)
		}
		datasets = append(datasets, &ds)
	}

	sort.Slice(datasets, func(i, j int) bool {
		if !datasets[i].CreatedAt.Equal(datasets[j].CreatedAt) {
			return datasets[i].CreatedAt.After(datasets[j].CreatedAt)
		}
		return datasets[i].ID > datasets[j].ID
	})

	total := len(datasets)
	if offset >= total {
		return []*Dataset{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return datasets[offset:end], total, nil
}

// Delete removes a dataset record. Jobs referencing it stay readable; the
// reference is weak.
func (s *Service) Delete(ctx context.Context, datasetID string) error {
	if err := s.store.Delete(datasetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("dataset", datasetID)
		}
		return apperrors.Persistence("dataset.delete", err)
	}
	slog.Info("Dataset deleted", "datasetId", datasetID)
	return nil
}

func (s *Service) nameTaken(name string) (bool, error) {
	ids, err := s.store.IDs()
	if err != nil {
		return false, apperrors.Persistence("dataset.register", err)
	}
	for _, id := range ids {
		var ds Dataset
		if err := s.store.Get(id, &ds); err != nil {
			continue
		}
		if ds.Name == name {
			return true, nil
		}
	}
	return false, nil
}
