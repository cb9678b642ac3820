// Package files manages the two uploaded workbooks a reconciliation run
// needs: the general ledger and the trial balance carrying supplier names.
package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/payrec/payrec/internal/ledger"
	"github.com/payrec/payrec/internal/platform/blob"
	"github.com/payrec/payrec/internal/platform/httpx"
	"github.com/payrec/payrec/internal/supplier"
)

const (
	ledgerBlob  = "ledger.upload"
	balanceBlob = "balance.upload"
	metaBlob    = "uploads.json"
)

// meta remembers the original filenames, which carry the extension the
// workbook readers dispatch on.
type meta struct {
	Ledger  string `json:"ledger,omitempty"`
	Balance string `json:"balance,omitempty"`
}

// UploadInfo reports what a stored upload contained.
type UploadInfo struct {
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
	Rows     int    `json:"rows"`
}

// Service stores uploads and rehydrates them into domain values.
type Service struct {
	store *blob.Store
	log   *slog.Logger
}

func NewService(store *blob.Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// SaveLedger stores a general-ledger workbook and reports how many entries
// it parses into.
func (s *Service) SaveLedger(r io.Reader, filename string) (UploadInfo, error) {
	n, err := s.save(ledgerBlob, r, filename, func(m *meta) { m.Ledger = filename })
	if err != nil {
		return UploadInfo{}, err
	}
	entries, err := s.Ledger()
	if err != nil {
		return UploadInfo{}, err
	}
	s.log.Info("ledger stored", slog.String("file", filename), slog.Int("entries", len(entries)))
	return UploadInfo{Filename: filename, Bytes: n, Rows: len(entries)}, nil
}

// SaveBalance stores a trial-balance workbook and reports how many supplier
// accounts it yields.
func (s *Service) SaveBalance(r io.Reader, filename string) (UploadInfo, error) {
	n, err := s.save(balanceBlob, r, filename, func(m *meta) { m.Balance = filename })
	if err != nil {
		return UploadInfo{}, err
	}
	dir, err := s.Suppliers()
	if err != nil {
		return UploadInfo{}, err
	}
	s.log.Info("balance stored", slog.String("file", filename), slog.Int("suppliers", len(dir)))
	return UploadInfo{Filename: filename, Bytes: n, Rows: len(dir)}, nil
}

// Ledger parses the stored general ledger.
func (s *Service) Ledger() ([]ledger.Entry, error) {
	m, err := s.meta()
	if err != nil {
		return nil, err
	}
	if m.Ledger == "" {
		return nil, fmt.Errorf("%w: no ledger uploaded", httpx.ErrNotFound)
	}
	rc, err := s.store.Open(ledgerBlob)
	if err != nil {
		return nil, s.mapNotFound(err, "ledger")
	}
	defer rc.Close()
	entries, err := ledger.Load(rc, m.Ledger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return entries, nil
}

// Suppliers parses the stored trial balance into the account directory.
func (s *Service) Suppliers() (supplier.Directory, error) {
	m, err := s.meta()
	if err != nil {
		return nil, err
	}
	if m.Balance == "" {
		return nil, fmt.Errorf("%w: no balance uploaded", httpx.ErrNotFound)
	}
	rc, err := s.store.Open(balanceBlob)
	if err != nil {
		return nil, s.mapNotFound(err, "balance")
	}
	defer rc.Close()
	dir, err := supplier.Load(rc, m.Balance)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return dir, nil
}

// Clear removes both uploads.
func (s *Service) Clear() error {
	return s.store.Remove(ledgerBlob, balanceBlob, metaBlob)
}

func (s *Service) save(name string, r io.Reader, filename string, update func(*meta)) (int64, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls", ".xlsx":
	default:
		return 0, fmt.Errorf("%w: unsupported file type %q", httpx.ErrValidation, filepath.Ext(filename))
	}

	n, err := s.store.Put(name, r)
	if err != nil {
		return 0, err
	}

	m, err := s.meta()
	if err != nil {
		return 0, err
	}
	update(&m)
	data, err := json.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("files: encode meta: %w", err)
	}
	if _, err := s.store.Put(metaBlob, strings.NewReader(string(data))); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Service) meta() (meta, error) {
	rc, err := s.store.Open(metaBlob)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return meta{}, nil
		}
		return meta{}, err
	}
	defer rc.Close()

	var m meta
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return meta{}, fmt.Errorf("files: decode meta: %w", err)
	}
	return m, nil
}

func (s *Service) mapNotFound(err error, kind string) error {
	if errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("%w: no %s uploaded", httpx.ErrNotFound, kind)
	}
	return err
}
